package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/presswork/internal/engine"
	"github.com/roach88/presswork/internal/model"
)

// IntakeOptions holds flags for the intake command.
type IntakeOptions struct {
	*RootOptions
	TrustedRoles    bool
	TrustedLicenses bool
}

// IntakeOutput is the intake command's result payload.
type IntakeOutput struct {
	Publication  string   `json:"publication"`
	State        string   `json:"state"`
	Requirements []string `json:"requirements,omitempty"`
}

func (o IntakeOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "publication %s (%s)", o.Publication, o.State)
	for _, r := range o.Requirements {
		fmt.Fprintf(&b, "\n  awaiting %s", r)
	}
	return b.String()
}

// NewIntakeCommand creates the intake command.
func NewIntakeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IntakeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "intake <package.json>",
		Short: "Submit a document package and open its publication",
		Long: `Submit a document package and open its publication.

The package is parsed, validated, and resolved against the archive. On
success the publication waits for its acceptance requirements (or is
ready immediately when none are pending).

Example:
  presswork intake chapter.json --trusted-roles`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntake(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.TrustedRoles, "trusted-roles", false, "pre-accept all role requirements")
	cmd.Flags().BoolVar(&opts.TrustedLicenses, "trusted-licenses", false, "pre-accept all license requirements")

	return cmd
}

func runIntake(opts *IntakeOptions, path string, cmd *cobra.Command) error {
	f := formatter(opts.RootOptions, cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read package", err)
	}

	eng, store, err := openEngine(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	pubID, err := eng.Intake(ctx, data, engine.IntakeOptions{
		TrustedRoles:    opts.TrustedRoles,
		TrustedLicenses: opts.TrustedLicenses,
	})
	if err != nil {
		return reportEngineError(f, err)
	}

	st, err := eng.State(ctx, pubID)
	if err != nil {
		return reportEngineError(f, err)
	}

	out := IntakeOutput{
		Publication: string(pubID),
		State:       string(st.Publication.State),
	}
	for _, r := range st.Requirements {
		if r.State == model.RequirementPending {
			out.Requirements = append(out.Requirements, r.Tuple())
		}
	}

	if err := f.Success(out); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return nil
}
