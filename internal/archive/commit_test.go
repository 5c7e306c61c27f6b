package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/presswork/internal/model"
)

func TestCommitPublication_NewAndRevision(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Seed the archive with doc-x at versions 1..3 via an earlier
	// publication.
	createTestPublication(t, s, "pub-seed", model.StateSubmitting)
	insertTestItems(t, s, createTestItem("pub-seed", "doc-x", 0, 1, true))
	if _, err := s.CommitPublication(ctx, "pub-seed", 1, 1); err != nil {
		t.Fatalf("seed commit failed: %v", err)
	}
	for v := int64(2); v <= 3; v++ {
		id := model.PublicationID("pub-seed-" + string(rune('0'+v)))
		createTestPublication(t, s, string(id), model.StateSubmitting)
		insertTestItems(t, s, createTestItem(string(id), "doc-x", 0, v, false))
		if _, err := s.CommitPublication(ctx, id, v, int64(v)); err != nil {
			t.Fatalf("seed commit v%d failed: %v", v, err)
		}
	}

	// The publication under test revises doc-x@3 and adds new content.
	createTestPublication(t, s, "pub-1", model.StateSubmitting)
	insertTestItems(t, s,
		createTestItem("pub-1", "doc-x", 0, 4, false),
		createTestItem("pub-1", "doc-new", 1, 1, true),
	)

	records, err := s.CommitPublication(ctx, "pub-1", 10, 10)
	if err != nil {
		t.Fatalf("CommitPublication() failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Ref() != "doc-x@4" {
		t.Errorf("records[0] = %s, want doc-x@4", records[0].Ref())
	}
	if records[1].Ref() != "doc-new@1" {
		t.Errorf("records[1] = %s, want doc-new@1", records[1].Ref())
	}

	pub, err := s.GetPublication(ctx, "pub-1")
	if err != nil {
		t.Fatalf("GetPublication() failed: %v", err)
	}
	if pub.State != model.StateArchived {
		t.Errorf("state = %s, want archived", pub.State)
	}
}

func TestCommitPublication_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	createTestPublication(t, s, "pub-1", model.StateSubmitting)
	insertTestItems(t, s, createTestItem("pub-1", "doc-a", 0, 1, true))

	first, err := s.CommitPublication(ctx, "pub-1", 5, 5)
	if err != nil {
		t.Fatalf("first CommitPublication() failed: %v", err)
	}

	// Replaying the same publication must return the same records and
	// append nothing.
	second, err := s.CommitPublication(ctx, "pub-1", 6, 6)
	if err != nil {
		t.Fatalf("replayed CommitPublication() failed: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("replay returned %d records, want %d", len(second), len(first))
	}
	if second[0].Ref() != first[0].Ref() {
		t.Errorf("replay ref = %s, want %s", second[0].Ref(), first[0].Ref())
	}

	versions, err := s.ListVersions(ctx, "doc-a")
	if err != nil {
		t.Fatalf("ListVersions() failed: %v", err)
	}
	if len(versions) != 1 {
		t.Errorf("doc-a has %d versions after replay, want 1", len(versions))
	}
}

func TestCommitPublication_VersionConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Two publications both resolve doc-x to candidate version 1.
	createTestPublication(t, s, "pub-1", model.StateSubmitting)
	insertTestItems(t, s, createTestItem("pub-1", "doc-x", 0, 1, true))
	createTestPublication(t, s, "pub-2", model.StateSubmitting)
	insertTestItems(t, s, createTestItem("pub-2", "doc-x", 0, 1, true))

	if _, err := s.CommitPublication(ctx, "pub-1", 1, 1); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	_, err := s.CommitPublication(ctx, "pub-2", 2, 2)
	if !IsVersionConflict(err) {
		t.Fatalf("err = %v, want VersionConflictError", err)
	}
	var vc *VersionConflictError
	errors.As(err, &vc)
	if vc.Candidate != 1 || vc.Next != 2 {
		t.Errorf("conflict = candidate %d next %d, want 1 and 2", vc.Candidate, vc.Next)
	}

	// The losing commit must leave no trace: exactly one version 1
	// record exists and pub-2 is not archived.
	versions, err := s.ListVersions(ctx, "doc-x")
	if err != nil {
		t.Fatalf("ListVersions() failed: %v", err)
	}
	if len(versions) != 1 || versions[0] != 1 {
		t.Errorf("versions = %v, want [1]", versions)
	}

	pub, err := s.GetPublication(ctx, "pub-2")
	if err != nil {
		t.Fatalf("GetPublication() failed: %v", err)
	}
	if pub.State != model.StateSubmitting {
		t.Errorf("losing publication state = %s, want submitting", pub.State)
	}
}

func TestCommitPublication_AllOrNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// pub-1 archives doc-a@1 first.
	createTestPublication(t, s, "pub-1", model.StateSubmitting)
	insertTestItems(t, s, createTestItem("pub-1", "doc-a", 0, 1, true))
	if _, err := s.CommitPublication(ctx, "pub-1", 1, 1); err != nil {
		t.Fatalf("seed commit failed: %v", err)
	}

	// pub-2 carries one committable item and one conflicting item. The
	// conflict must roll back BOTH.
	createTestPublication(t, s, "pub-2", model.StateSubmitting)
	insertTestItems(t, s,
		createTestItem("pub-2", "doc-b", 0, 1, true),
		createTestItem("pub-2", "doc-a", 1, 1, false),
	)

	_, err := s.CommitPublication(ctx, "pub-2", 2, 2)
	if !IsVersionConflict(err) {
		t.Fatalf("err = %v, want VersionConflictError", err)
	}

	if _, exists, err := s.CurrentVersion(ctx, "doc-b"); err != nil {
		t.Fatalf("CurrentVersion() failed: %v", err)
	} else if exists {
		t.Error("doc-b was partially committed despite rollback")
	}
}

func TestCommitPublication_GapFreeVersions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for v := int64(1); v <= 5; v++ {
		id := model.PublicationID("pub-" + string(rune('0'+v)))
		createTestPublication(t, s, string(id), model.StateSubmitting)
		insertTestItems(t, s, createTestItem(string(id), "doc-x", 0, v, v == 1))
		if _, err := s.CommitPublication(ctx, id, v, int64(v)); err != nil {
			t.Fatalf("commit v%d failed: %v", v, err)
		}
	}

	versions, err := s.ListVersions(ctx, "doc-x")
	if err != nil {
		t.Fatalf("ListVersions() failed: %v", err)
	}
	if len(versions) != 5 {
		t.Fatalf("len(versions) = %d, want 5", len(versions))
	}
	for i, v := range versions {
		if v != int64(i+1) {
			t.Errorf("versions[%d] = %d, want %d (strictly increasing, no gaps)", i, v, i+1)
		}
	}
}

func TestCommitPublication_NoItems(t *testing.T) {
	s := createTestStore(t)
	createTestPublication(t, s, "pub-1", model.StateSubmitting)

	_, err := s.CommitPublication(context.Background(), "pub-1", 1, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
