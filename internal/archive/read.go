package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/presswork/internal/model"
)

// GetPublication retrieves one publication row.
// Returns ErrNotFound if the identifier is unknown.
func (s *Store) GetPublication(ctx context.Context, id model.PublicationID) (model.Publication, error) {
	var (
		pub                  model.Publication
		state                string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, state, publisher, message, failure_reason, created_at, updated_at
		FROM publications
		WHERE id = ?
	`, string(id)).Scan(
		&pub.ID, &state, &pub.Publisher, &pub.Message,
		&pub.FailureReason, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Publication{}, fmt.Errorf("publication %s: %w", id, ErrNotFound)
		}
		return model.Publication{}, fmt.Errorf("get publication: %w", err)
	}
	pub.State = model.State(state)
	pub.CreatedAt = time.Unix(0, createdAt).UTC()
	pub.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return pub, nil
}

// ListContentItems returns a publication's items ordered by position.
// Returns an empty slice (not nil) when the publication has none.
func (s *Store) ListContentItems(ctx context.Context, pubID model.PublicationID) ([]model.ContentItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer tx.Rollback()
	return listContentItemsTx(ctx, tx, pubID)
}

func listContentItemsTx(ctx context.Context, tx *sql.Tx, pubID model.PublicationID) ([]model.ContentItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT publication_id, content_id, hash, kind, title, position, is_new, candidate_version
		FROM content_items
		WHERE publication_id = ?
		ORDER BY position ASC
	`, string(pubID))
	if err != nil {
		return nil, fmt.Errorf("query content items: %w", err)
	}
	defer rows.Close()

	items := []model.ContentItem{}
	for rows.Next() {
		var (
			item model.ContentItem
			kind string
		)
		if err := rows.Scan(
			&item.PublicationID, &item.ContentID, &item.Hash, &kind,
			&item.Title, &item.Position, &item.IsNew, &item.CandidateVersion,
		); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		item.Kind = model.ItemKind(kind)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content items: %w", err)
	}
	return items, nil
}

// ListAcceptances returns a publication's requirement tuples with
// deterministic ordering (kind, subject, identity).
func (s *Store) ListAcceptances(ctx context.Context, pubID model.PublicationID) ([]model.Requirement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT publication_id, kind, subject, identity, state, decided_seq
		FROM acceptances
		WHERE publication_id = ?
		ORDER BY kind ASC, subject ASC, identity ASC
	`, string(pubID))
	if err != nil {
		return nil, fmt.Errorf("query acceptances: %w", err)
	}
	defer rows.Close()

	reqs := []model.Requirement{}
	for rows.Next() {
		var (
			r           model.Requirement
			kind, state string
		)
		if err := rows.Scan(&r.PublicationID, &kind, &r.Subject, &r.Identity, &state, &r.DecidedSeq); err != nil {
			return nil, fmt.Errorf("scan acceptance: %w", err)
		}
		r.Kind = model.SubjectKind(kind)
		r.State = model.RequirementState(state)
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate acceptances: %w", err)
	}
	return reqs, nil
}

// CurrentVersion returns the archive's latest committed version for a
// content identifier and whether the identifier exists at all.
func (s *Store) CurrentVersion(ctx context.Context, id model.ContentID) (int64, bool, error) {
	var current sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(version) FROM archive_records WHERE content_id = ?
	`, string(id)).Scan(&current)
	if err != nil {
		return 0, false, fmt.Errorf("current version: %w", err)
	}
	if !current.Valid {
		return 0, false, nil
	}
	return current.Int64, true, nil
}

// ListVersions returns every committed version of an identifier in
// ascending order. Used to verify the no-gaps invariant.
func (s *Store) ListVersions(ctx context.Context, id model.ContentID) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version FROM archive_records
		WHERE content_id = ?
		ORDER BY version ASC
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := []int64{}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}

// MaxSeq returns the highest logical sequence number stored anywhere in
// the database, or 0 when nothing has been stamped yet. Used on restart
// to resume the engine clock past everything already recorded.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var max int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT decided_seq AS seq FROM acceptances
			UNION ALL
			SELECT seq FROM archive_records
		)
	`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return max, nil
}

// RecordsForPublication returns the archive records a publication
// committed, ordered by the publication's item positions. Empty when
// the publication has not archived.
func (s *Store) RecordsForPublication(ctx context.Context, pubID model.PublicationID) ([]model.ArchiveRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ar.content_id, ar.version, ar.hash, ar.kind, ar.publication_id, ar.seq
		FROM archive_records ar
		JOIN content_items ci
		  ON ci.publication_id = ar.publication_id AND ci.content_id = ar.content_id
		WHERE ar.publication_id = ?
		ORDER BY ci.position ASC
	`, string(pubID))
	if err != nil {
		return nil, fmt.Errorf("records for publication: %w", err)
	}
	defer rows.Close()

	records := []model.ArchiveRecord{}
	for rows.Next() {
		var (
			rec  model.ArchiveRecord
			kind string
		)
		if err := rows.Scan(&rec.ContentID, &rec.Version, &rec.Hash, &kind, &rec.PublicationID, &rec.Seq); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Kind = model.ItemKind(kind)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// ArchivedContent returns the committed content bytes for one
// (identifier, version). Returns ErrNotFound for an unknown pair.
func (s *Store) ArchivedContent(ctx context.Context, id model.ContentID, version int64) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM archive_records
		WHERE content_id = ? AND version = ?
	`, string(id), version).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("content %s: %w", model.FormatRef(id, version), ErrNotFound)
		}
		return nil, fmt.Errorf("archived content: %w", err)
	}
	return content, nil
}

// Locate answers "where is this content" for both archived and
// in-flight identifiers. Archived content wins over pending references.
// Returns ErrNotFound when the identifier is neither archived nor part
// of any in-flight publication.
func (s *Store) Locate(ctx context.Context, id model.ContentID) (model.Location, error) {
	loc := model.Location{ContentID: id}

	var (
		version int64
		hash    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, hash FROM archive_records
		WHERE content_id = ?
		ORDER BY version DESC
		LIMIT 1
	`, string(id)).Scan(&version, &hash)
	switch {
	case err == nil:
		loc.Archived = true
		loc.Version = version
		loc.Hash = hash
		return loc, nil
	case errors.Is(err, sql.ErrNoRows):
		// Fall through to the pending lookup.
	default:
		return model.Location{}, fmt.Errorf("locate: %w", err)
	}

	var (
		pubID string
		state string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT p.id, p.state
		FROM content_items ci
		JOIN publications p ON p.id = ci.publication_id
		WHERE ci.content_id = ?
		  AND p.state NOT IN (?, ?, ?)
		ORDER BY p.created_at ASC
		LIMIT 1
	`, string(id),
		string(model.StateArchived), string(model.StateRejected), string(model.StateFailed),
	).Scan(&pubID, &state)
	switch {
	case err == nil:
		loc.PendingPublication = model.PublicationID(pubID)
		loc.PendingState = model.State(state)
		return loc, nil
	case errors.Is(err, sql.ErrNoRows):
		return model.Location{}, fmt.Errorf("content %s: %w", id, ErrNotFound)
	default:
		return model.Location{}, fmt.Errorf("locate: %w", err)
	}
}
