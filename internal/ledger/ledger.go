// Package ledger tracks the acceptance requirements of a publication:
// the set of (role|license, subject, identity) tuples that must all be
// accepted before the publication may be archived.
//
// The ledger owns the acceptances table rows but keeps no in-memory
// state; every query reflects the durable truth, so a crash never loses
// or duplicates a decision. Decisions are terminal per tuple - there is
// no retraction.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/presswork/internal/archive"
	"github.com/roach88/presswork/internal/model"
)

// Protocol errors, reported synchronously to the caller with no state
// change.
var (
	// ErrUnknownRequirement reports a decision for a tuple that is not
	// open for the publication.
	ErrUnknownRequirement = errors.New("unknown requirement")

	// ErrAlreadyDecided reports a decision for a tuple that has already
	// left pending. Decisions are terminal; replaying the identical
	// decision still yields this error rather than double-counting.
	ErrAlreadyDecided = errors.New("requirement already decided")
)

// Tuple names one requirement without its state.
type Tuple struct {
	Kind     model.SubjectKind
	Subject  string
	Identity string
}

// SeedOptions pre-accepts requirement classes at open time, for trusted
// publishers whose role or license assignments are vetted upstream.
type SeedOptions struct {
	RolesAccepted    bool
	LicensesAccepted bool
}

// Summary aggregates a publication's ledger state.
type Summary struct {
	Total    int
	Pending  int
	Accepted int
	Rejected int

	// FirstRejection is the offending tuple for diagnostics, nil when
	// nothing is rejected. "First" by the deterministic (kind, subject,
	// identity) ordering, not by decision time.
	FirstRejection *model.Requirement
}

// Satisfied reports whether every tuple is accepted. An empty ledger is
// vacuously satisfied.
func (s Summary) Satisfied() bool {
	return s.Rejected == 0 && s.Pending == 0
}

// HasRejection reports whether any tuple is rejected.
func (s Summary) HasRejection() bool {
	return s.Rejected > 0
}

// Ledger mediates all requirement-tuple reads and writes.
type Ledger struct {
	store *archive.Store
}

// New creates a Ledger over the given store.
func New(store *archive.Store) *Ledger {
	return &Ledger{store: store}
}

// Open creates the requirement set for a publication, deduplicated by
// tuple. Idempotent: reopening with the same tuples leaves existing
// rows and their decisions unchanged. Seeded classes start accepted
// instead of pending; seeding never overrides an existing decision.
func (l *Ledger) Open(ctx context.Context, pubID model.PublicationID, tuples []Tuple, seed SeedOptions, seq int64) error {
	seen := make(map[Tuple]bool, len(tuples))
	reqs := make([]model.Requirement, 0, len(tuples))
	for _, t := range tuples {
		if seen[t] {
			continue
		}
		seen[t] = true

		state := model.RequirementPending
		decidedSeq := int64(0)
		if (t.Kind == model.SubjectRole && seed.RolesAccepted) ||
			(t.Kind == model.SubjectLicense && seed.LicensesAccepted) {
			state = model.RequirementAccepted
			decidedSeq = seq
		}

		reqs = append(reqs, model.Requirement{
			PublicationID: pubID,
			Kind:          t.Kind,
			Subject:       t.Subject,
			Identity:      t.Identity,
			State:         state,
			DecidedSeq:    decidedSeq,
		})
	}

	if err := l.store.OpenAcceptances(ctx, reqs); err != nil {
		return fmt.Errorf("open ledger for %s: %w", pubID, err)
	}
	return nil
}

// Record transitions exactly the matching tuple. Returns the decided
// requirement for diagnostics.
//
// Concurrent calls on the same tuple resolve so exactly one wins; the
// loser observes ErrAlreadyDecided.
func (l *Ledger) Record(ctx context.Context, pubID model.PublicationID, identity string, kind model.SubjectKind, subject string, decision model.Decision, seq int64) (model.Requirement, error) {
	next, err := decisionState(decision)
	if err != nil {
		return model.Requirement{}, err
	}

	updated, exists, err := l.store.DecideAcceptance(ctx, pubID, kind, subject, identity, next, seq)
	if err != nil {
		return model.Requirement{}, err
	}

	req := model.Requirement{
		PublicationID: pubID,
		Kind:          kind,
		Subject:       subject,
		Identity:      identity,
		State:         next,
		DecidedSeq:    seq,
	}

	if !exists {
		return model.Requirement{}, fmt.Errorf("%w: %s", ErrUnknownRequirement, req.Tuple())
	}
	if !updated {
		return model.Requirement{}, fmt.Errorf("%w: %s", ErrAlreadyDecided, req.Tuple())
	}
	return req, nil
}

// RecordAll decides every pending tuple of one kind held by an identity,
// in deterministic order. Already-decided tuples are skipped rather than
// errored, matching bulk accept-all semantics. Returns how many tuples
// this call decided.
func (l *Ledger) RecordAll(ctx context.Context, pubID model.PublicationID, identity string, kind model.SubjectKind, decision model.Decision, seq int64) (int, error) {
	next, err := decisionState(decision)
	if err != nil {
		return 0, err
	}

	reqs, err := l.store.ListAcceptances(ctx, pubID)
	if err != nil {
		return 0, err
	}

	decided := 0
	for _, r := range reqs {
		if r.Kind != kind || r.Identity != identity || r.State != model.RequirementPending {
			continue
		}
		updated, _, err := l.store.DecideAcceptance(ctx, pubID, kind, r.Subject, identity, next, seq)
		if err != nil {
			return decided, err
		}
		if updated {
			decided++
		}
	}
	return decided, nil
}

// Snapshot returns every tuple of a publication in deterministic order.
func (l *Ledger) Snapshot(ctx context.Context, pubID model.PublicationID) ([]model.Requirement, error) {
	return l.store.ListAcceptances(ctx, pubID)
}

// Summarize aggregates the ledger state for satisfaction and rejection
// checks.
func (l *Ledger) Summarize(ctx context.Context, pubID model.PublicationID) (Summary, error) {
	reqs, err := l.store.ListAcceptances(ctx, pubID)
	if err != nil {
		return Summary{}, err
	}

	var s Summary
	s.Total = len(reqs)
	for i, r := range reqs {
		switch r.State {
		case model.RequirementAccepted:
			s.Accepted++
		case model.RequirementRejected:
			s.Rejected++
			if s.FirstRejection == nil {
				s.FirstRejection = &reqs[i]
			}
		default:
			s.Pending++
		}
	}
	return s, nil
}

func decisionState(d model.Decision) (model.RequirementState, error) {
	switch d {
	case model.DecisionAccept:
		return model.RequirementAccepted, nil
	case model.DecisionReject:
		return model.RequirementRejected, nil
	default:
		return "", fmt.Errorf("unknown decision %q", d)
	}
}
