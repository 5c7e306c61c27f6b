package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/presswork/internal/model"
)

// AcceptOptions holds flags for the accept command.
type AcceptOptions struct {
	*RootOptions
	Identity string
	Kind     string
	Subject  string
	Reject   bool
	All      bool
}

// AcceptOutput is the accept command's result payload.
type AcceptOutput struct {
	Publication string `json:"publication"`
	Decision    string `json:"decision"`
	Decided     int    `json:"decided"`
	State       string `json:"state"`
}

func (o AcceptOutput) String() string {
	return fmt.Sprintf("recorded %s for %d requirement(s); publication %s is %s",
		o.Decision, o.Decided, o.Publication, o.State)
}

// NewAcceptCommand creates the accept command.
func NewAcceptCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AcceptOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "accept <publication-id>",
		Short: "Record an acceptance decision for a requirement tuple",
		Long: `Record an acceptance decision for a requirement tuple.

Decisions are terminal per tuple. Use --reject to record a rejection,
which terminates the whole publication. Use --all to decide every
pending tuple of the given kind held by the identity.

Examples:
  presswork accept pub-1 --identity user:alice --kind role --subject author
  presswork accept pub-1 --identity user:alice --kind license --all
  presswork accept pub-1 --identity user:alice --kind license --subject cc-by-4.0 --reject`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccept(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Identity, "identity", "", "deciding identity (required)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "requirement kind: role or license (required)")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "requirement subject (role or license name)")
	cmd.Flags().BoolVar(&opts.Reject, "reject", false, "record a rejection instead of an acceptance")
	cmd.Flags().BoolVar(&opts.All, "all", false, "decide every pending tuple of the kind held by the identity")
	cmd.MarkFlagRequired("identity")
	cmd.MarkFlagRequired("kind")

	return cmd
}

func runAccept(opts *AcceptOptions, id string, cmd *cobra.Command) error {
	f := formatter(opts.RootOptions, cmd)

	kind := model.SubjectKind(opts.Kind)
	if kind != model.SubjectRole && kind != model.SubjectLicense {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown kind %q: must be role or license", opts.Kind))
	}
	if !opts.All && opts.Subject == "" {
		return NewExitError(ExitCommandError, "either --subject or --all is required")
	}

	decision := model.DecisionAccept
	if opts.Reject {
		decision = model.DecisionReject
	}

	eng, store, err := openEngine(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	pubID := model.PublicationID(id)
	decided := 1
	if opts.All {
		decided, err = eng.RecordAcceptanceAll(ctx, pubID, opts.Identity, kind, decision)
	} else {
		err = eng.RecordAcceptance(ctx, pubID, opts.Identity, kind, opts.Subject, decision)
	}
	if err != nil {
		return reportEngineError(f, err)
	}

	st, err := eng.State(ctx, pubID)
	if err != nil {
		return reportEngineError(f, err)
	}

	out := AcceptOutput{
		Publication: id,
		Decision:    string(decision),
		Decided:     decided,
		State:       string(st.Publication.State),
	}
	if err := f.Success(out); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return nil
}
