package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/presswork/internal/archive"
	"github.com/roach88/presswork/internal/engine"
)

// openEngine opens the workflow database and builds an engine over it,
// resuming the logical clock from the stored sequence position. The
// caller must Close the returned store.
func openEngine(ctx context.Context, opts *RootOptions) (*engine.Engine, *archive.Store, error) {
	store, err := archive.Open(opts.DBPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open database", err)
	}
	eng, err := engine.Restore(ctx, store)
	if err != nil {
		store.Close()
		return nil, nil, WrapExitError(ExitCommandError, "restore engine", err)
	}
	return eng, store, nil
}

// formatter builds the output formatter for a command invocation.
func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// errorCode maps engine errors to the stable codes reported in CLI
// output.
func errorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotReady):
		return "NOT_READY"
	case errors.Is(err, engine.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, archive.ErrNotFound):
		return "NOT_FOUND"
	}
	var we *engine.WorkflowError
	if errors.As(err, &we) {
		return string(we.Code)
	}
	return "INTERNAL"
}

// reportEngineError renders an engine error and converts it to an
// ExitError. Workflow refusals exit 1; everything else exits 2.
func reportEngineError(f *OutputFormatter, err error) error {
	code := errorCode(err)

	exit := ExitFailure
	if code == "INTERNAL" || code == "NOT_FOUND" {
		exit = ExitCommandError
	}

	if ferr := f.Error(code, err.Error(), nil); ferr != nil {
		return WrapExitError(ExitCommandError, "write output", ferr)
	}
	return WrapExitError(exit, code, err)
}
