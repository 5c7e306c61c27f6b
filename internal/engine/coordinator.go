package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/presswork/internal/archive"
	"github.com/roach88/presswork/internal/model"
)

// Submit drives a ready publication through commit: ready → submitting,
// all-or-nothing archive commit, then post-publication dispatch.
//
// Idempotent. Submitting a publication that is already archived returns
// the existing records and re-attempts dispatch if the claim was never
// made. A publication found in submitting (crashed mid-commit) is
// resumed. Any other state returns ErrNotReady.
//
// Version conflicts with concurrently committed publications are
// resolved by re-resolving the advisory candidates and retrying, up to
// the configured retry budget. An exhausted budget or an inconsistent
// replay fails the publication.
func (e *Engine) Submit(ctx context.Context, pubID model.PublicationID) (model.SubmitResult, error) {
	pub, err := e.store.GetPublication(ctx, pubID)
	if err != nil {
		return model.SubmitResult{}, err
	}

	switch pub.State {
	case model.StateArchived:
		return e.replaySubmit(ctx, pubID)

	case model.StateReady:
		ok, err := e.store.UpdateState(ctx, pubID, model.StateReady, model.StateSubmitting, "", e.now().UTC().UnixNano())
		if err != nil {
			return model.SubmitResult{}, err
		}
		if !ok {
			// A concurrent Submit won the guard; fall through to resume
			// whatever state it reached.
			return e.Submit(ctx, pubID)
		}

	case model.StateSubmitting:
		// Crashed or concurrent commit in flight; resume below.

	default:
		return model.SubmitResult{}, fmt.Errorf("%w: publication %s is %s", ErrNotReady, pubID, pub.State)
	}

	records, err := e.commitWithRetry(ctx, pubID)
	if err != nil {
		return model.SubmitResult{}, err
	}

	if err := e.dispatcher.OnArchived(ctx, pubID); err != nil {
		// The publication is archived; dispatch retries on the next
		// Submit replay.
		slog.Error("post-publication dispatch failed", "publication", pubID, "error", err)
		return model.SubmitResult{}, err
	}

	slog.Info("publication archived", "publication", pubID, "records", len(records))
	return model.SubmitResult{PublicationID: pubID, Records: records}, nil
}

// replaySubmit serves Submit on an already-archived publication: return
// the recorded refs and make sure dispatch happened.
func (e *Engine) replaySubmit(ctx context.Context, pubID model.PublicationID) (model.SubmitResult, error) {
	records, err := e.store.RecordsForPublication(ctx, pubID)
	if err != nil {
		return model.SubmitResult{}, err
	}
	if err := e.dispatcher.OnArchived(ctx, pubID); err != nil {
		return model.SubmitResult{}, err
	}
	return model.SubmitResult{PublicationID: pubID, Records: records}, nil
}

// commitWithRetry runs the archive commit, re-resolving candidates after
// version conflicts until success or the retry budget runs out.
func (e *Engine) commitWithRetry(ctx context.Context, pubID model.PublicationID) ([]model.ArchiveRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= e.commitRetries; attempt++ {
		records, err := e.store.CommitPublication(ctx, pubID, e.clock.Next(), e.now().UTC().UnixNano())
		if err == nil {
			return records, nil
		}
		lastErr = err

		var inconsistent *archive.InconsistentCommitError
		if errors.As(err, &inconsistent) {
			// A replayed commit no longer matches what this publication
			// recorded. Not retryable: fail with the detail preserved.
			return nil, e.failCommit(ctx, pubID, err)
		}

		if archive.IsVersionConflict(err) {
			slog.Info("commit version conflict, re-resolving",
				"publication", pubID, "attempt", attempt+1, "error", err)
			if _, rerr := e.resolver.ReResolve(ctx, pubID); rerr != nil {
				return nil, e.failCommit(ctx, pubID, rerr)
			}
			continue
		}

		slog.Warn("commit attempt failed",
			"publication", pubID, "attempt", attempt+1, "error", err)
	}
	return nil, e.failCommit(ctx, pubID, fmt.Errorf("retries exhausted: %w", lastErr))
}

// failCommit moves a publication stuck in submitting to failed and
// returns a COMMIT_FAILED workflow error carrying the cause.
func (e *Engine) failCommit(ctx context.Context, pubID model.PublicationID, cause error) error {
	we := &WorkflowError{
		Code:          ErrCodeCommitFailed,
		Message:       cause.Error(),
		PublicationID: string(pubID),
	}
	if err := e.fail(ctx, pubID, we.Message); err != nil {
		return errors.Join(we, err)
	}
	slog.Error("publication failed at commit", "publication", pubID, "error", cause)
	return fmt.Errorf("%w: %w", we, cause)
}
