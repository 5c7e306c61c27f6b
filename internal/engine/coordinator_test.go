package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/presswork/internal/model"
	"github.com/roach88/presswork/internal/testutil"
)

// acceptAll drives a publication through its whole ledger.
func acceptAll(t *testing.T, e *Engine, pubID model.PublicationID) {
	t.Helper()
	ctx := context.Background()
	_, err := e.RecordAcceptanceAll(ctx, pubID, "user:alice", model.SubjectRole, model.DecisionAccept)
	require.NoError(t, err)
	_, err = e.RecordAcceptanceAll(ctx, pubID, "user:alice", model.SubjectLicense, model.DecisionAccept)
	require.NoError(t, err)
}

func TestSubmit_BeforeReadyFails(t *testing.T) {
	s := newTestStore(t)
	archiveVersions(t, s, "doc-x", 3)
	e := New(s, WithIDGenerator(testutil.NewFixedIDGenerator("pub-1", "doc-new")))
	ctx := context.Background()

	pubID, err := e.Intake(ctx, twoItemPackage(), IntakeOptions{})
	require.NoError(t, err)

	_, err = e.Submit(ctx, pubID)
	require.ErrorIs(t, err, ErrNotReady)

	// The refused submit changed nothing.
	st, err := e.State(ctx, pubID)
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingAcceptance, st.Publication.State)
}

func TestSubmit_ArchivesAndDispatchesOnce(t *testing.T) {
	s := newTestStore(t)
	archiveVersions(t, s, "doc-x", 3)
	sink := &MemorySink{}
	e := New(s,
		WithIDGenerator(testutil.NewFixedIDGenerator("pub-1", "doc-new")),
		WithJobSink(sink),
	)
	ctx := context.Background()

	pubID, err := e.Intake(ctx, twoItemPackage(), IntakeOptions{})
	require.NoError(t, err)
	acceptAll(t, e, pubID)

	res, err := e.Submit(ctx, pubID)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "doc-new@1", res.Records[0].Ref())
	assert.Equal(t, "doc-x@4", res.Records[1].Ref())

	st, err := e.State(ctx, pubID)
	require.NoError(t, err)
	assert.Equal(t, model.StateArchived, st.Publication.State)

	jobs := sink.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "index", jobs[0].Name)
	assert.Equal(t, "notify", jobs[1].Name)
	for _, j := range jobs {
		assert.Equal(t, pubID, j.PublicationID)
	}
}

func TestSubmit_ReplayIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	archiveVersions(t, s, "doc-x", 3)
	sink := &MemorySink{}
	e := New(s,
		WithIDGenerator(testutil.NewFixedIDGenerator("pub-1", "doc-new")),
		WithJobSink(sink),
	)
	ctx := context.Background()

	pubID, err := e.Intake(ctx, twoItemPackage(), IntakeOptions{})
	require.NoError(t, err)
	acceptAll(t, e, pubID)

	first, err := e.Submit(ctx, pubID)
	require.NoError(t, err)

	second, err := e.Submit(ctx, pubID)
	require.NoError(t, err)
	assert.Equal(t, first.Records, second.Records)

	// One job set total, not two.
	assert.Len(t, sink.Jobs(), 2)

	// No duplicate versions appeared.
	versions, err := s.ListVersions(ctx, "doc-x")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, versions)
}

func TestSubmit_ResumesAfterCrashMidCommit(t *testing.T) {
	s := newTestStore(t)
	archiveVersions(t, s, "doc-x", 3)
	e := New(s, WithIDGenerator(testutil.NewFixedIDGenerator("pub-1", "doc-new")))
	ctx := context.Background()

	pubID, err := e.Intake(ctx, twoItemPackage(), IntakeOptions{})
	require.NoError(t, err)
	acceptAll(t, e, pubID)

	// Simulate a crash after entering submitting but before the commit
	// transaction: the row is stuck in submitting with nothing archived.
	ok, err := s.UpdateState(ctx, pubID, model.StateReady, model.StateSubmitting, "", 1)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := e.Submit(ctx, pubID)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	st, err := e.State(ctx, pubID)
	require.NoError(t, err)
	assert.Equal(t, model.StateArchived, st.Publication.State)
}

func TestSubmit_ConcurrentRevisionsGetDistinctVersions(t *testing.T) {
	s := newTestStore(t)
	archiveVersions(t, s, "doc-x", 3)
	e := New(s, WithIDGenerator(testutil.NewFixedIDGenerator("pub-a", "pub-b")))
	ctx := context.Background()

	revision := func() []byte {
		return []byte(`{
			"format": "presswork/v1",
			"publisher": "user:press",
			"items": [{
				"kind": "document",
				"content": "competing revision",
				"revises": "doc-x",
				"roles": [{"role": "author", "identity": "user:alice"}],
				"license": {"name": "cc-by-4.0", "acceptors": ["user:alice"]}
			}]
		}`)
	}

	// Both publications resolve against version 3 before either commits,
	// so both hold candidate 4.
	pubA, err := e.Intake(ctx, revision(), IntakeOptions{TrustedRoles: true, TrustedLicenses: true})
	require.NoError(t, err)
	pubB, err := e.Intake(ctx, revision(), IntakeOptions{TrustedRoles: true, TrustedLicenses: true})
	require.NoError(t, err)

	resA, err := e.Submit(ctx, pubA)
	require.NoError(t, err)
	assert.Equal(t, "doc-x@4", resA.Records[0].Ref())

	// The loser detects the conflict at commit, re-resolves, and lands
	// on the next version instead of duplicating 4.
	resB, err := e.Submit(ctx, pubB)
	require.NoError(t, err)
	assert.Equal(t, "doc-x@5", resB.Records[0].Ref())

	versions, err := s.ListVersions(ctx, "doc-x")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, versions)
}

// refusingSink fails the first enqueue, then accepts.
type refusingSink struct {
	MemorySink
	refused bool
}

func (s *refusingSink) Enqueue(ctx context.Context, job Job) error {
	if !s.refused {
		s.refused = true
		return errors.New("queue unavailable")
	}
	return s.MemorySink.Enqueue(ctx, job)
}

func TestSubmit_DispatchRetriesAfterSinkFailure(t *testing.T) {
	s := newTestStore(t)
	sink := &refusingSink{}
	e := New(s,
		WithIDGenerator(testutil.NewFixedIDGenerator("pub-1", "res-1")),
		WithJobSink(sink),
	)
	ctx := context.Background()

	pubID, err := e.Intake(ctx, resourceOnlyPackage(), IntakeOptions{})
	require.NoError(t, err)

	// The commit lands but dispatch fails; the publication stays
	// archived with the dispatch claim released.
	_, err = e.Submit(ctx, pubID)
	require.Error(t, err)

	st, err := e.State(ctx, pubID)
	require.NoError(t, err)
	assert.Equal(t, model.StateArchived, st.Publication.State)
	assert.Empty(t, sink.Jobs())

	// The replay picks dispatch back up and enqueues the full set.
	res, err := e.Submit(ctx, pubID)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Len(t, sink.Jobs(), 2)
}

func TestSubmit_FailedPublicationNeverSubmits(t *testing.T) {
	e := New(newTestStore(t), WithIDGenerator(testutil.NewFixedIDGenerator("pub-1")))
	ctx := context.Background()

	pubID, err := e.Intake(ctx, []byte("{not json"), IntakeOptions{})
	require.Error(t, err)

	_, err = e.Submit(ctx, pubID)
	assert.ErrorIs(t, err, ErrNotReady)
}
