package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/presswork/internal/model"
)

// LocateOutput is the locate command's result payload.
type LocateOutput struct {
	ContentID string `json:"content_id"`
	Archived  bool   `json:"archived"`
	Ref       string `json:"ref,omitempty"`
	Hash      string `json:"hash,omitempty"`
	Pending   string `json:"pending_publication,omitempty"`
	State     string `json:"pending_state,omitempty"`
}

func (o LocateOutput) String() string {
	if o.Archived {
		return fmt.Sprintf("%s archived at %s (hash %s)", o.ContentID, o.Ref, o.Hash)
	}
	return fmt.Sprintf("%s pending in publication %s (%s)", o.ContentID, o.Pending, o.State)
}

// NewLocateCommand creates the locate command.
func NewLocateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locate <content-id>",
		Short: "Find where a content identifier lives",
		Long: `Find where a content identifier lives.

Archived content reports its latest version and hash. Identifiers that
only exist inside an in-flight publication report that publication and
its state.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runLocate(opts *RootOptions, id string, cmd *cobra.Command) error {
	f := formatter(opts, cmd)

	eng, store, err := openEngine(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer store.Close()

	loc, err := eng.Locate(cmd.Context(), model.ContentID(id))
	if err != nil {
		return reportEngineError(f, err)
	}

	out := LocateOutput{
		ContentID: string(loc.ContentID),
		Archived:  loc.Archived,
	}
	if loc.Archived {
		out.Ref = model.FormatRef(loc.ContentID, loc.Version)
		out.Hash = loc.Hash
	} else {
		out.Pending = string(loc.PendingPublication)
		out.State = string(loc.PendingState)
	}

	if err := f.Success(out); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return nil
}
