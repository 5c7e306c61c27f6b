package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/presswork/internal/archive"
	"github.com/roach88/presswork/internal/model"
)

// Job is one post-publication work item.
type Job struct {
	PublicationID model.PublicationID
	Name          string
}

// JobSink receives post-publication jobs. Implementations must tolerate
// the engine retrying a failed Enqueue with the same job.
type JobSink interface {
	Enqueue(ctx context.Context, job Job) error
}

// Dispatcher enqueues the registered job set exactly once per archived
// publication.
//
// Exactly-once is enforced with a durable dispatch claim: the first
// OnArchived call for a publication claims it and enqueues; replays find
// the claim and do nothing. If the sink refuses an enqueue the claim is
// released so a later OnArchived can try again.
type Dispatcher struct {
	store *archive.Store
	sink  JobSink
	jobs  []string
}

// NewDispatcher creates a Dispatcher enqueuing the named jobs.
func NewDispatcher(store *archive.Store, sink JobSink, jobs ...string) *Dispatcher {
	return &Dispatcher{store: store, sink: sink, jobs: jobs}
}

// OnArchived schedules the job set for an archived publication.
// Idempotent: re-invocation for an already-dispatched publication is a
// no-op, not a duplicate enqueue.
func (d *Dispatcher) OnArchived(ctx context.Context, pubID model.PublicationID) error {
	claimed, err := d.store.MarkDispatched(ctx, pubID)
	if err != nil {
		return err
	}
	if !claimed {
		slog.Debug("dispatch already claimed", "publication", pubID)
		return nil
	}

	for _, name := range d.jobs {
		if err := d.sink.Enqueue(ctx, Job{PublicationID: pubID, Name: name}); err != nil {
			// Release the claim so a retry can dispatch the full set.
			if unmarkErr := d.store.UnmarkDispatched(ctx, pubID); unmarkErr != nil {
				slog.Error("failed to release dispatch claim",
					"publication", pubID, "error", unmarkErr)
			}
			return fmt.Errorf("enqueue %s for %s: %w", name, pubID, err)
		}
	}

	slog.Info("post-publication jobs dispatched",
		"publication", pubID, "jobs", len(d.jobs))
	return nil
}

// MemorySink collects jobs in memory. Used in tests and as the default
// sink for single-process setups.
//
// Thread-safety: safe for concurrent use via internal mutex.
type MemorySink struct {
	mu   sync.Mutex
	jobs []Job
}

// Enqueue appends the job.
func (s *MemorySink) Enqueue(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

// Jobs returns a copy of everything enqueued so far.
func (s *MemorySink) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// LogSink logs each job instead of delivering it anywhere. The default
// sink for the CLI, where the real queue lives outside this process.
type LogSink struct{}

// Enqueue logs the job.
func (LogSink) Enqueue(_ context.Context, job Job) error {
	slog.Info("job enqueued", "publication", job.PublicationID, "job", job.Name)
	return nil
}
