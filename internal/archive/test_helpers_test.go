package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/presswork/internal/model"
)

// createTestStore creates a temp-file store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestPublication inserts a publication in the given state.
func createTestPublication(t *testing.T, s *Store, id string, state model.State) model.Publication {
	t.Helper()
	now := time.Unix(0, 1700000000000000000).UTC()
	pub := model.Publication{
		ID:        model.PublicationID(id),
		State:     state,
		Publisher: "user:press",
		Message:   "test publication",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreatePublication(context.Background(), pub); err != nil {
		t.Fatalf("CreatePublication() failed: %v", err)
	}
	return pub
}

// createTestItem builds one content item for a publication.
func createTestItem(pubID, contentID string, position int, candidate int64, isNew bool) model.ContentItem {
	return model.ContentItem{
		PublicationID:    model.PublicationID(pubID),
		ContentID:        model.ContentID(contentID),
		Hash:             model.ContentHash([]byte(contentID + "-content")),
		Kind:             model.KindDocument,
		Title:            "Test " + contentID,
		Position:         position,
		IsNew:            isNew,
		CandidateVersion: candidate,
	}
}

// insertTestItems inserts items with derived content bytes.
func insertTestItems(t *testing.T, s *Store, items ...model.ContentItem) {
	t.Helper()
	contents := make([][]byte, len(items))
	for i, item := range items {
		contents[i] = []byte(string(item.ContentID) + "-content")
	}
	if err := s.InsertContentItems(context.Background(), items, contents); err != nil {
		t.Fatalf("InsertContentItems() failed: %v", err)
	}
}

// createTestRequirement builds one pending requirement tuple.
func createTestRequirement(pubID string, kind model.SubjectKind, subject, identity string) model.Requirement {
	return model.Requirement{
		PublicationID: model.PublicationID(pubID),
		Kind:          kind,
		Subject:       subject,
		Identity:      identity,
		State:         model.RequirementPending,
	}
}
