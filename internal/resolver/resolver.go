// Package resolver determines, for each parsed content item, whether it
// is new content (minting a pending identifier) or a revision of
// existing archived content (resolving the identifier and an advisory
// next-version candidate).
//
// Resolution is advisory: it fixes WHICH identifier a version will use,
// never which version number it gets. Version numbers are finalized
// inside the coordinator's commit transaction, because concurrent
// publications may resolve against the same base before either commits.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/presswork/internal/archive"
	"github.com/roach88/presswork/internal/intake"
	"github.com/roach88/presswork/internal/model"
)

// ErrUnknownBaseIdentifier reports a declared revision target that does
// not exist in the archive.
var ErrUnknownBaseIdentifier = errors.New("unknown base identifier")

// mintAttempts bounds the collision retry loop for new identifiers.
// UUIDv7 collisions are effectively impossible; the check exists so the
// resolver's contract does not rest on that assumption.
const mintAttempts = 5

// Resolver assigns content identifiers against the archive's read
// interface.
type Resolver struct {
	store *archive.Store
	idgen model.IDGenerator
}

// New creates a Resolver.
func New(store *archive.Store, idgen model.IDGenerator) *Resolver {
	return &Resolver{store: store, idgen: idgen}
}

// Resolve maps parsed items to content items with assigned identifiers
// and advisory version candidates, in package order.
func (r *Resolver) Resolve(ctx context.Context, pubID model.PublicationID, parsed []intake.ParsedItem) ([]model.ContentItem, error) {
	items := make([]model.ContentItem, 0, len(parsed))
	for _, p := range parsed {
		item := model.ContentItem{
			PublicationID: pubID,
			Hash:          p.Hash,
			Kind:          p.Kind,
			Title:         p.Title,
			Position:      p.Position,
		}

		if p.Revises != "" {
			current, exists, err := r.store.CurrentVersion(ctx, p.Revises)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", p.Revises, err)
			}
			if !exists {
				return nil, fmt.Errorf("%w: %s", ErrUnknownBaseIdentifier, p.Revises)
			}
			item.ContentID = p.Revises
			item.CandidateVersion = current + 1
		} else {
			id, err := r.mint(ctx)
			if err != nil {
				return nil, err
			}
			item.ContentID = id
			item.IsNew = true
			item.CandidateVersion = 1
		}

		items = append(items, item)
	}
	return items, nil
}

// ReResolve refreshes the advisory candidates of a publication's stored
// items after a commit conflict, so the coordinator can retry against
// the archive's current counters. Returns the refreshed items.
func (r *Resolver) ReResolve(ctx context.Context, pubID model.PublicationID) ([]model.ContentItem, error) {
	items, err := r.store.ListContentItems(ctx, pubID)
	if err != nil {
		return nil, err
	}

	// Records this publication already committed keep their versions;
	// replaying them is handled by the commit's idempotency check.
	owned := make(map[model.ContentID]int64)
	records, err := r.store.RecordsForPublication(ctx, pubID)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		owned[rec.ContentID] = rec.Version
	}

	for i, item := range items {
		if v, ok := owned[item.ContentID]; ok {
			items[i].CandidateVersion = v
			continue
		}
		current, _, err := r.store.CurrentVersion(ctx, item.ContentID)
		if err != nil {
			return nil, fmt.Errorf("re-resolve %s: %w", item.ContentID, err)
		}
		next := current + 1
		if next != item.CandidateVersion {
			if err := r.store.UpdateCandidateVersion(ctx, pubID, item.ContentID, next); err != nil {
				return nil, err
			}
			items[i].CandidateVersion = next
		}
	}
	return items, nil
}

// mint allocates a fresh pending identifier, collision-checked against
// the archive.
func (r *Resolver) mint(ctx context.Context) (model.ContentID, error) {
	for attempt := 0; attempt < mintAttempts; attempt++ {
		id := model.ContentID(r.idgen.NewID())
		_, exists, err := r.store.CurrentVersion(ctx, id)
		if err != nil {
			return "", fmt.Errorf("mint identifier: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("mint identifier: %d consecutive collisions", mintAttempts)
}
