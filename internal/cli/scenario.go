package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/presswork/internal/harness"
)

// ScenarioOutput is the scenario command's result payload.
type ScenarioOutput struct {
	Scenario string               `json:"scenario"`
	Steps    int                  `json:"steps"`
	Jobs     int                  `json:"jobs"`
	Trace    []harness.TraceEvent `json:"trace"`
}

func (o ScenarioOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s passed (%d steps, %d jobs)", o.Scenario, o.Steps, o.Jobs)
	for _, ev := range o.Trace {
		fmt.Fprintf(&b, "\n  %d. %s", ev.Seq, ev.Op)
		if ev.Publication != "" {
			fmt.Fprintf(&b, " %s", ev.Publication)
		}
		if ev.State != "" {
			fmt.Fprintf(&b, " -> %s", ev.State)
		}
		if ev.Error != "" {
			fmt.Fprintf(&b, " (error: %s)", ev.Error)
		}
	}
	return b.String()
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario <scenario.yaml>",
		Short: "Run a declarative workflow scenario",
		Long: `Run a declarative workflow scenario.

The scenario executes against a throwaway database, so it never touches
the database named by --db. Step expectations and final assertions are
validated; the first mismatch fails the run.

Example:
  presswork scenario scenarios/lifecycle.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runScenario(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := formatter(opts, cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "load scenario", err)
	}

	dir, err := os.MkdirTemp("", "presswork-scenario-*")
	if err != nil {
		return WrapExitError(ExitCommandError, "create scratch dir", err)
	}
	defer os.RemoveAll(dir)

	result, err := harness.Run(scenario, dir)
	if err != nil {
		if ferr := f.Error("SCENARIO_FAILED", err.Error(), nil); ferr != nil {
			return WrapExitError(ExitCommandError, "write output", ferr)
		}
		return WrapExitError(ExitFailure, "scenario failed", err)
	}

	out := ScenarioOutput{
		Scenario: scenario.Name,
		Steps:    len(result.Trace),
		Jobs:     len(result.Jobs),
		Trace:    result.Trace,
	}
	if err := f.Success(out); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return nil
}
