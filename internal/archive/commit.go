package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/presswork/internal/model"
)

// CommitPublication archives every content item of a publication and
// flips its state to archived, all in one transaction.
//
// For each item, ordered by position:
//
//  1. If the publication already owns a record for the identifier
//     (replayed commit), verify it sits at the item's candidate version
//     and reuse it. A mismatch aborts with InconsistentCommitError.
//  2. Otherwise compute next = MAX(version)+1 for the identifier. If
//     next differs from the candidate, another publication won the
//     race: abort with VersionConflictError.
//  3. Append the record at next, copying the item's content bytes into
//     the archive.
//
// The publication's submitting → archived flip is part of the same
// transaction, so a crash at any point leaves either no trace or the
// complete result. Replays of an already-archived publication return
// the existing records unchanged.
func (s *Store) CommitPublication(ctx context.Context, pubID model.PublicationID, seq, committedAt int64) ([]model.ArchiveRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("commit publication: %w", err)
	}
	defer tx.Rollback()

	items, err := listContentItemsTx(ctx, tx, pubID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("commit publication %s: no content items: %w", pubID, ErrNotFound)
	}

	records := make([]model.ArchiveRecord, 0, len(items))
	for _, item := range items {
		rec, err := commitItemTx(ctx, tx, pubID, item, seq)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	// Flip submitting → archived inside the same transaction. The state
	// guard tolerates replays that already archived the row.
	if _, err := tx.ExecContext(ctx, `
		UPDATE publications
		SET state = ?, failure_reason = '', updated_at = ?
		WHERE id = ? AND state IN (?, ?)
	`,
		string(model.StateArchived), committedAt, string(pubID),
		string(model.StateSubmitting), string(model.StateArchived),
	); err != nil {
		return nil, fmt.Errorf("commit publication: mark archived: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit publication: %w", err)
	}
	return records, nil
}

func commitItemTx(ctx context.Context, tx *sql.Tx, pubID model.PublicationID, item model.ContentItem, seq int64) (model.ArchiveRecord, error) {
	// Replay check: does this publication already own a record for the
	// identifier?
	var recorded int64
	err := tx.QueryRowContext(ctx, `
		SELECT version FROM archive_records
		WHERE content_id = ? AND publication_id = ?
	`, string(item.ContentID), string(pubID)).Scan(&recorded)
	switch {
	case err == nil:
		if recorded != item.CandidateVersion {
			return model.ArchiveRecord{}, &InconsistentCommitError{
				PublicationID: pubID,
				ContentID:     item.ContentID,
				Recorded:      recorded,
				Target:        item.CandidateVersion,
			}
		}
		return model.ArchiveRecord{
			ContentID:     item.ContentID,
			Version:       recorded,
			Hash:          item.Hash,
			Kind:          item.Kind,
			PublicationID: pubID,
			Seq:           seq,
		}, nil
	case errors.Is(err, sql.ErrNoRows):
		// Fall through to the fresh append.
	default:
		return model.ArchiveRecord{}, fmt.Errorf("commit item %s: %w", item.ContentID, err)
	}

	// Version compare-and-swap: the archive's counter is the single
	// source of truth; the resolver's candidate is only advisory.
	var current sql.NullInt64
	if err := tx.QueryRowContext(ctx, `
		SELECT MAX(version) FROM archive_records WHERE content_id = ?
	`, string(item.ContentID)).Scan(&current); err != nil {
		return model.ArchiveRecord{}, fmt.Errorf("commit item %s: %w", item.ContentID, err)
	}
	next := current.Int64 + 1

	if next != item.CandidateVersion {
		return model.ArchiveRecord{}, &VersionConflictError{
			ContentID: item.ContentID,
			Candidate: item.CandidateVersion,
			Next:      next,
		}
	}

	var content []byte
	if err := tx.QueryRowContext(ctx, `
		SELECT content FROM content_items
		WHERE publication_id = ? AND content_id = ?
	`, string(pubID), string(item.ContentID)).Scan(&content); err != nil {
		return model.ArchiveRecord{}, fmt.Errorf("commit item %s: read content: %w", item.ContentID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO archive_records
		(content_id, version, hash, kind, publication_id, seq, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		string(item.ContentID), next, item.Hash, string(item.Kind),
		string(pubID), seq, content,
	); err != nil {
		return model.ArchiveRecord{}, fmt.Errorf("commit item %s: %w", item.ContentID, err)
	}

	return model.ArchiveRecord{
		ContentID:     item.ContentID,
		Version:       next,
		Hash:          item.Hash,
		Kind:          item.Kind,
		PublicationID: pubID,
		Seq:           seq,
	}, nil
}
