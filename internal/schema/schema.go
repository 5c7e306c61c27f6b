// Package schema validates inbound package manifests against an embedded
// CUE schema before any workflow state is created.
//
// Uses the CUE SDK's Go API directly (not a CLI subprocess). The schema
// lives in manifest.cue and is compiled once at first use.
package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed manifest.cue
var manifestCUE string

var (
	compileOnce sync.Once
	compiled    cue.Value
	compileErr  error
)

// manifestSchema compiles the embedded schema once and returns the
// #Manifest definition.
func manifestSchema() (cue.Value, error) {
	compileOnce.Do(func() {
		ctx := cuecontext.New()
		v := ctx.CompileString(manifestCUE, cue.Filename("manifest.cue"))
		if err := v.Err(); err != nil {
			compileErr = fmt.Errorf("compile manifest schema: %w", err)
			return
		}
		compiled = v.LookupPath(cue.ParsePath("#Manifest"))
		if err := compiled.Err(); err != nil {
			compileErr = fmt.Errorf("lookup #Manifest: %w", err)
		}
	})
	return compiled, compileErr
}

// ValidationError reports a manifest that does not satisfy the schema.
// Details holds the CUE error listing, one line per violation.
type ValidationError struct {
	Details string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest does not satisfy schema: %s", e.Details)
}

// ValidateManifest checks raw manifest JSON against the embedded schema.
// Returns *ValidationError on schema violations. A JSON syntax error is
// also reported as a *ValidationError: callers are expected to have
// parsed the bytes already, so a syntax failure here means the schema
// check was handed something else.
func ValidateManifest(data []byte) error {
	sv, err := manifestSchema()
	if err != nil {
		return err
	}

	expr, err := cuejson.Extract("manifest.json", data)
	if err != nil {
		return &ValidationError{Details: err.Error()}
	}

	val := sv.Context().BuildExpr(expr)
	if err := val.Err(); err != nil {
		return &ValidationError{Details: cueerrors.Details(err, nil)}
	}

	unified := sv.Unify(val)
	if err := unified.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		return &ValidationError{Details: cueerrors.Details(err, nil)}
	}
	return nil
}
