package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/presswork/internal/model"
)

// SubmitOutput is the submit command's result payload.
type SubmitOutput struct {
	Publication string   `json:"publication"`
	Refs        []string `json:"refs"`
}

func (o SubmitOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "publication %s archived", o.Publication)
	for _, ref := range o.Refs {
		fmt.Fprintf(&b, "\n  %s", ref)
	}
	return b.String()
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <publication-id>",
		Short: "Archive a ready publication",
		Long: `Archive a ready publication.

Every content item is committed in one transaction: each identifier
gets its next sequential version, and the post-publication job set is
dispatched exactly once. Submitting an already-archived publication
replays the same result.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSubmit(opts *RootOptions, id string, cmd *cobra.Command) error {
	f := formatter(opts, cmd)

	eng, store, err := openEngine(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := eng.Submit(cmd.Context(), model.PublicationID(id))
	if err != nil {
		return reportEngineError(f, err)
	}

	out := SubmitOutput{Publication: id}
	for _, rec := range res.Records {
		out.Refs = append(out.Refs, rec.Ref())
	}

	if err := f.Success(out); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return nil
}
