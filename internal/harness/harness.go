package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/presswork/internal/archive"
	"github.com/roach88/presswork/internal/engine"
	"github.com/roach88/presswork/internal/model"
	"github.com/roach88/presswork/internal/testutil"
)

// TraceEvent is one executed step's outcome.
type TraceEvent struct {
	Seq         int      `json:"seq"`
	Op          string   `json:"op"`
	Publication string   `json:"publication,omitempty"`
	Tuple       string   `json:"tuple,omitempty"`
	Content     string   `json:"content,omitempty"`
	Location    string   `json:"location,omitempty"`
	State       string   `json:"state,omitempty"`
	Refs        []string `json:"refs,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Result is a completed scenario run.
type Result struct {
	Trace []TraceEvent
	Jobs  []engine.Job
}

// Run executes a scenario against a fresh engine over a database in
// dir. Step expectations are validated during the run; final assertions
// after it. Any mismatch is an error naming the failing step or
// assertion.
func Run(scenario *Scenario, dir string) (*Result, error) {
	store, err := archive.Open(filepath.Join(dir, "harness.db"))
	if err != nil {
		return nil, err
	}
	defer store.Close()

	ctx := context.Background()
	if err := seedArchive(ctx, store, scenario.Seed); err != nil {
		return nil, err
	}

	sink := &engine.MemorySink{}
	eng := engine.New(store,
		engine.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.IDs...)),
		engine.WithJobSink(sink),
		engine.WithNow(func() time.Time { return time.Unix(0, 0).UTC() }),
	)

	result := &Result{}
	for i, step := range scenario.Steps {
		event, err := runStep(ctx, eng, scenario, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		event.Seq = len(result.Trace) + 1
		result.Trace = append(result.Trace, event)

		if err := checkExpect(i, step.Expect, event); err != nil {
			return nil, err
		}
	}

	result.Jobs = sink.Jobs()
	for i, a := range scenario.Assertions {
		if err := checkAssertion(ctx, store, result, i, a); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// seedArchive commits the seeded versions through throwaway
// publications, the same way content would normally arrive.
func seedArchive(ctx context.Context, store *archive.Store, seed []SeedEntry) error {
	epoch := time.Unix(0, 0).UTC()
	for _, entry := range seed {
		for v := int64(1); v <= entry.Versions; v++ {
			pubID := model.PublicationID(fmt.Sprintf("seed-%s-%d", entry.Content, v))
			content := []byte(fmt.Sprintf("%s version %d", entry.Content, v))

			if err := store.CreatePublication(ctx, model.Publication{
				ID: pubID, State: model.StateSubmitting,
				Publisher: "user:seed", CreatedAt: epoch, UpdatedAt: epoch,
			}); err != nil {
				return err
			}
			if err := store.InsertContentItems(ctx, []model.ContentItem{{
				PublicationID:    pubID,
				ContentID:        model.ContentID(entry.Content),
				Hash:             model.ContentHash(content),
				Kind:             model.KindDocument,
				Position:         0,
				IsNew:            v == 1,
				CandidateVersion: v,
			}}, [][]byte{content}); err != nil {
				return err
			}
			if _, err := store.CommitPublication(ctx, pubID, v, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

func runStep(ctx context.Context, eng *engine.Engine, scenario *Scenario, step Step) (TraceEvent, error) {
	switch {
	case step.Intake != nil:
		return runIntake(ctx, eng, scenario, step.Intake)
	case step.Accept != nil:
		return runDecision(ctx, eng, "accept", step.Accept, model.DecisionAccept)
	case step.Reject != nil:
		return runDecision(ctx, eng, "reject", step.Reject, model.DecisionReject)
	case step.Submit != nil:
		return runSubmit(ctx, eng, step.Submit)
	case step.Locate != nil:
		return runLocate(ctx, eng, step.Locate)
	}
	return TraceEvent{}, fmt.Errorf("empty step")
}

func runIntake(ctx context.Context, eng *engine.Engine, scenario *Scenario, step *IntakeStep) (TraceEvent, error) {
	data, err := os.ReadFile(filepath.Join(scenario.dir, step.Package))
	if err != nil {
		return TraceEvent{}, err
	}

	event := TraceEvent{Op: "intake"}
	pubID, err := eng.Intake(ctx, data, engine.IntakeOptions{
		TrustedRoles:    step.TrustedRoles,
		TrustedLicenses: step.TrustedLicenses,
	})
	event.Publication = string(pubID)
	if err != nil {
		event.Error = errorCode(err)
		return event, nil
	}
	return withState(ctx, eng, event)
}

func runDecision(ctx context.Context, eng *engine.Engine, op string, step *DecisionStep, decision model.Decision) (TraceEvent, error) {
	kind := model.SubjectKind(step.Kind)
	event := TraceEvent{
		Op:          op,
		Publication: step.Publication,
		Tuple:       fmt.Sprintf("%s:%s by %s", kind, step.Subject, step.Identity),
	}

	err := eng.RecordAcceptance(ctx, model.PublicationID(step.Publication), step.Identity, kind, step.Subject, decision)
	if err != nil {
		event.Error = errorCode(err)
		return event, nil
	}
	return withState(ctx, eng, event)
}

func runSubmit(ctx context.Context, eng *engine.Engine, step *SubmitStep) (TraceEvent, error) {
	event := TraceEvent{Op: "submit", Publication: step.Publication}

	res, err := eng.Submit(ctx, model.PublicationID(step.Publication))
	if err != nil {
		event.Error = errorCode(err)
		return event, nil
	}
	for _, rec := range res.Records {
		event.Refs = append(event.Refs, rec.Ref())
	}
	return withState(ctx, eng, event)
}

func runLocate(ctx context.Context, eng *engine.Engine, step *LocateStep) (TraceEvent, error) {
	event := TraceEvent{Op: "locate", Content: step.Content}

	loc, err := eng.Locate(ctx, model.ContentID(step.Content))
	if err != nil {
		event.Error = errorCode(err)
		return event, nil
	}
	if loc.Archived {
		event.Location = model.FormatRef(loc.ContentID, loc.Version)
	} else {
		event.Location = "pending " + string(loc.PendingPublication)
	}
	return event, nil
}

// withState annotates the event with the publication's state after the
// step took effect.
func withState(ctx context.Context, eng *engine.Engine, event TraceEvent) (TraceEvent, error) {
	if event.Publication == "" {
		return event, nil
	}
	st, err := eng.State(ctx, model.PublicationID(event.Publication))
	if err != nil {
		return event, err
	}
	event.State = string(st.Publication.State)
	return event, nil
}

// errorCode maps engine errors to the stable codes scenarios match on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotReady):
		return "not-ready"
	case errors.Is(err, engine.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, archive.ErrNotFound):
		return "not-found"
	}
	var we *engine.WorkflowError
	if errors.As(err, &we) {
		return string(we.Code)
	}
	return "error"
}

func checkExpect(index int, expect *Expect, event TraceEvent) error {
	if expect == nil {
		if event.Error != "" {
			return fmt.Errorf("steps[%d]: unexpected error %q", index, event.Error)
		}
		return nil
	}

	if event.Error != expect.Error {
		return fmt.Errorf("steps[%d]: error %q, want %q", index, event.Error, expect.Error)
	}
	if expect.State != "" && event.State != expect.State {
		return fmt.Errorf("steps[%d]: state %q, want %q", index, event.State, expect.State)
	}
	if len(expect.Refs) > 0 && !slices.Equal(event.Refs, expect.Refs) {
		return fmt.Errorf("steps[%d]: refs %v, want %v", index, event.Refs, expect.Refs)
	}
	return nil
}

func checkAssertion(ctx context.Context, store *archive.Store, result *Result, index int, a Assertion) error {
	switch a.Type {
	case AssertState:
		pub, err := store.GetPublication(ctx, model.PublicationID(a.Publication))
		if err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if string(pub.State) != a.State {
			return fmt.Errorf("assertions[%d]: publication %s is %s, want %s",
				index, a.Publication, pub.State, a.State)
		}

	case AssertVersions:
		versions, err := store.ListVersions(ctx, model.ContentID(a.Content))
		if err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if !slices.Equal(versions, a.Versions) {
			return fmt.Errorf("assertions[%d]: %s versions %v, want %v",
				index, a.Content, versions, a.Versions)
		}

	case AssertJobs:
		if len(result.Jobs) != a.Count {
			return fmt.Errorf("assertions[%d]: %d jobs dispatched, want %d",
				index, len(result.Jobs), a.Count)
		}
	}
	return nil
}
