package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/presswork/internal/model"
)

// CreatePublication inserts a new publication row.
func (s *Store) CreatePublication(ctx context.Context, pub model.Publication) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO publications
		(id, state, publisher, message, failure_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		string(pub.ID),
		string(pub.State),
		pub.Publisher,
		pub.Message,
		pub.FailureReason,
		pub.CreatedAt.UnixNano(),
		pub.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create publication: %w", err)
	}
	return nil
}

// UpdateState transitions a publication from an expected state to the
// next one, guarded optimistically: the update only applies if the row
// is still in the expected state. Returns false if the guard failed
// (concurrent transition or unknown publication).
func (s *Store) UpdateState(ctx context.Context, id model.PublicationID, expect, next model.State, failureReason string, updatedAt int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE publications
		SET state = ?, failure_reason = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`,
		string(next), failureReason, updatedAt, string(id), string(expect),
	)
	if err != nil {
		return false, fmt.Errorf("update state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update state: %w", err)
	}
	return n == 1, nil
}

// InsertContentItems inserts a publication's items with their raw
// content. Items are immutable once inserted; only candidate_version
// may be refreshed later via UpdateCandidateVersion.
func (s *Store) InsertContentItems(ctx context.Context, items []model.ContentItem, contents [][]byte) error {
	if len(items) != len(contents) {
		return fmt.Errorf("insert content items: %d items but %d contents", len(items), len(contents))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert content items: %w", err)
	}
	defer tx.Rollback()

	for i, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO content_items
			(publication_id, content_id, hash, kind, title, position, is_new, candidate_version, content)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			string(item.PublicationID),
			string(item.ContentID),
			item.Hash,
			string(item.Kind),
			item.Title,
			item.Position,
			item.IsNew,
			item.CandidateVersion,
			contents[i],
		)
		if err != nil {
			return fmt.Errorf("insert content item %s: %w", item.ContentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert content items: %w", err)
	}
	return nil
}

// UpdateCandidateVersion refreshes an item's advisory version after a
// commit conflict forced re-resolution.
func (s *Store) UpdateCandidateVersion(ctx context.Context, pubID model.PublicationID, contentID model.ContentID, version int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_items
		SET candidate_version = ?
		WHERE publication_id = ? AND content_id = ?
	`, version, string(pubID), string(contentID))
	if err != nil {
		return fmt.Errorf("update candidate version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update candidate version: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update candidate version: item %s/%s: %w", pubID, contentID, ErrNotFound)
	}
	return nil
}

// OpenAcceptances inserts the requirement tuples for a publication.
// Uses ON CONFLICT DO NOTHING for idempotency: reopening the ledger with
// the same requirement set leaves existing rows (and their decisions)
// unchanged.
func (s *Store) OpenAcceptances(ctx context.Context, reqs []model.Requirement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("open acceptances: %w", err)
	}
	defer tx.Rollback()

	for _, r := range reqs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO acceptances
			(publication_id, kind, subject, identity, state, decided_seq)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(publication_id, kind, subject, identity) DO NOTHING
		`,
			string(r.PublicationID),
			string(r.Kind),
			r.Subject,
			r.Identity,
			string(r.State),
			r.DecidedSeq,
		)
		if err != nil {
			return fmt.Errorf("open acceptance %s: %w", r.Tuple(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("open acceptances: %w", err)
	}
	return nil
}

// DecideAcceptance transitions one requirement tuple out of pending.
// The WHERE state = 'pending' guard makes concurrent decisions on the
// same tuple resolve to exactly one winner: the loser sees updated ==
// false. Returns (updated, exists, err); exists reports whether the
// tuple is open at all for that publication.
func (s *Store) DecideAcceptance(ctx context.Context, pubID model.PublicationID, kind model.SubjectKind, subject, identity string, next model.RequirementState, seq int64) (updated, exists bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE acceptances
		SET state = ?, decided_seq = ?
		WHERE publication_id = ? AND kind = ? AND subject = ? AND identity = ?
		  AND state = 'pending'
	`,
		string(next), seq, string(pubID), string(kind), subject, identity,
	)
	if err != nil {
		return false, false, fmt.Errorf("decide acceptance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, false, fmt.Errorf("decide acceptance: %w", err)
	}
	if n == 1 {
		return true, true, nil
	}

	// Lost the race or no such tuple - look up which.
	var state string
	err = s.db.QueryRowContext(ctx, `
		SELECT state FROM acceptances
		WHERE publication_id = ? AND kind = ? AND subject = ? AND identity = ?
	`, string(pubID), string(kind), subject, identity).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("decide acceptance: %w", err)
	}
	return false, true, nil
}

// MarkDispatched claims the post-publication dispatch for a publication.
// Returns whether this call made the claim; false means the publication
// was already dispatched and the caller must not enqueue again.
func (s *Store) MarkDispatched(ctx context.Context, pubID model.PublicationID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatches (publication_id)
		VALUES (?)
		ON CONFLICT(publication_id) DO NOTHING
	`, string(pubID))
	if err != nil {
		return false, fmt.Errorf("mark dispatched: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark dispatched: %w", err)
	}
	return n == 1, nil
}

// UnmarkDispatched releases a dispatch claim after the job sink refused
// the enqueue, so a later retry can claim again.
func (s *Store) UnmarkDispatched(ctx context.Context, pubID model.PublicationID) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM dispatches WHERE publication_id = ?
	`, string(pubID)); err != nil {
		return fmt.Errorf("unmark dispatched: %w", err)
	}
	return nil
}
