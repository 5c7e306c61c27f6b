package engine

import (
	"context"
	"fmt"

	"github.com/roach88/presswork/internal/model"
)

// Authorizer answers "may identity I decide subject S for publication
// P". The engine consults it before every recorded decision; a non-nil
// error surfaces to the caller as ErrUnauthorized.
type Authorizer interface {
	Authorize(ctx context.Context, pubID model.PublicationID, identity string, kind model.SubjectKind, subject string) error
}

// AllowAll authorizes every decision. The default when callers perform
// their own authorization upstream.
type AllowAll struct{}

// Authorize always succeeds.
func (AllowAll) Authorize(context.Context, model.PublicationID, string, model.SubjectKind, string) error {
	return nil
}

// DenyIdentities refuses decisions from the listed identities.
// Used in tests and as a building block for simple policies.
type DenyIdentities map[string]bool

// Authorize fails for denied identities.
func (d DenyIdentities) Authorize(_ context.Context, _ model.PublicationID, identity string, _ model.SubjectKind, _ string) error {
	if d[identity] {
		return fmt.Errorf("identity %s is denied", identity)
	}
	return nil
}
