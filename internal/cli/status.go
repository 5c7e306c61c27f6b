package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/presswork/internal/model"
)

// StatusOutput is the status command's result payload.
type StatusOutput struct {
	Publication   string              `json:"publication"`
	State         string              `json:"state"`
	Publisher     string              `json:"publisher,omitempty"`
	Message       string              `json:"message,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	Items         []StatusItem        `json:"items,omitempty"`
	Requirements  []StatusRequirement `json:"requirements,omitempty"`
}

// StatusItem is one content item in a status report.
type StatusItem struct {
	ContentID string `json:"content_id"`
	Kind      string `json:"kind"`
	Title     string `json:"title,omitempty"`
	New       bool   `json:"new"`
	Candidate int64  `json:"candidate_version"`
}

// StatusRequirement is one requirement tuple in a status report.
type StatusRequirement struct {
	Tuple string `json:"tuple"`
	State string `json:"state"`
}

func (o StatusOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "publication %s (%s)", o.Publication, o.State)
	if o.Publisher != "" {
		fmt.Fprintf(&b, "\n  publisher: %s", o.Publisher)
	}
	if o.FailureReason != "" {
		fmt.Fprintf(&b, "\n  failure: %s", o.FailureReason)
	}
	for _, item := range o.Items {
		marker := "revises"
		if item.New {
			marker = "new"
		}
		fmt.Fprintf(&b, "\n  item %s (%s, %s, candidate v%d)", item.ContentID, item.Kind, marker, item.Candidate)
	}
	for _, r := range o.Requirements {
		fmt.Fprintf(&b, "\n  requirement %s: %s", r.Tuple, r.State)
	}
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status <publication-id>",
		Short:         "Show a publication's state, items, and requirements",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, id string, cmd *cobra.Command) error {
	f := formatter(opts, cmd)

	eng, store, err := openEngine(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := eng.State(cmd.Context(), model.PublicationID(id))
	if err != nil {
		return reportEngineError(f, err)
	}

	out := StatusOutput{
		Publication:   string(st.Publication.ID),
		State:         string(st.Publication.State),
		Publisher:     st.Publication.Publisher,
		Message:       st.Publication.Message,
		FailureReason: st.Publication.FailureReason,
	}
	for _, item := range st.Items {
		out.Items = append(out.Items, StatusItem{
			ContentID: string(item.ContentID),
			Kind:      string(item.Kind),
			Title:     item.Title,
			New:       item.IsNew,
			Candidate: item.CandidateVersion,
		})
	}
	for _, r := range st.Requirements {
		out.Requirements = append(out.Requirements, StatusRequirement{
			Tuple: r.Tuple(),
			State: string(r.State),
		})
	}

	if err := f.Success(out); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return nil
}
