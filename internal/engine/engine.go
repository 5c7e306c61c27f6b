package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/presswork/internal/archive"
	"github.com/roach88/presswork/internal/intake"
	"github.com/roach88/presswork/internal/ledger"
	"github.com/roach88/presswork/internal/model"
	"github.com/roach88/presswork/internal/resolver"
)

// DefaultCommitRetries is the retry budget for commit attempts after
// version conflicts or infrastructure errors.
const DefaultCommitRetries = 3

// DefaultJobs is the job set dispatched after archival unless
// overridden with WithJobs.
var DefaultJobs = []string{"index", "notify"}

// Engine is the publication workflow engine. Safe for concurrent use:
// all state lives in the store, and tuple/commit races are resolved
// there.
type Engine struct {
	store      *archive.Store
	ledger     *ledger.Ledger
	resolver   *resolver.Resolver
	dispatcher *Dispatcher
	authz      Authorizer
	clock      *Clock
	idgen      model.IDGenerator
	now        func() time.Time

	commitRetries int
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	authz         Authorizer
	clock         *Clock
	idgen         model.IDGenerator
	now           func() time.Time
	sink          JobSink
	jobs          []string
	commitRetries int
}

// WithAuthorizer installs an identity-authorization check consulted on
// every recorded decision. Default: AllowAll.
func WithAuthorizer(a Authorizer) Option {
	return func(o *options) { o.authz = a }
}

// WithClock installs a pre-configured logical clock, e.g. resumed from
// a stored position on restart.
func WithClock(c *Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDGenerator installs the identifier generator for publication and
// pending content identifiers. Default: model.UUIDv7Generator.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(o *options) { o.idgen = g }
}

// WithNow installs the wall-clock source for created/updated
// timestamps. Default: time.Now. Timestamps are informational; ordering
// always uses the logical clock.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithJobSink installs the post-publication job sink. Default: LogSink.
func WithJobSink(s JobSink) Option {
	return func(o *options) { o.sink = s }
}

// WithJobs overrides the dispatched job set. Default: DefaultJobs.
func WithJobs(jobs ...string) Option {
	return func(o *options) { o.jobs = jobs }
}

// WithCommitRetries overrides the commit retry budget.
func WithCommitRetries(n int) Option {
	return func(o *options) { o.commitRetries = n }
}

// New creates an Engine over the given store.
func New(store *archive.Store, opts ...Option) *Engine {
	o := &options{
		authz:         AllowAll{},
		clock:         NewClock(),
		idgen:         model.UUIDv7Generator{},
		now:           time.Now,
		sink:          LogSink{},
		jobs:          DefaultJobs,
		commitRetries: DefaultCommitRetries,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Engine{
		store:         store,
		ledger:        ledger.New(store),
		resolver:      resolver.New(store, o.idgen),
		dispatcher:    NewDispatcher(store, o.sink, o.jobs...),
		authz:         o.authz,
		clock:         o.clock,
		idgen:         o.idgen,
		now:           o.now,
		commitRetries: o.commitRetries,
	}
}

// Restore builds an Engine whose logical clock resumes past the highest
// sequence number already stored, so seqs stay strictly increasing
// across process restarts. Options may still override the clock.
func Restore(ctx context.Context, store *archive.Store, opts ...Option) (*Engine, error) {
	seq, err := store.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore clock: %w", err)
	}
	return New(store, append([]Option{WithClock(NewClockAt(seq))}, opts...)...), nil
}

// IntakeOptions carries per-submission trust flags. A trusted publisher
// has its role and/or license requirements pre-accepted at ledger open,
// for callers whose assignments are vetted upstream.
type IntakeOptions struct {
	TrustedRoles    bool
	TrustedLicenses bool
}

// Intake accepts a submitted package and opens its publication
// workflow. On success the publication sits in awaiting-acceptance (or
// ready, when every requirement was pre-accepted).
//
// Input errors return both the publication identifier and the error:
// the failed publication is retained with its failure reason for
// inspection via State.
func (e *Engine) Intake(ctx context.Context, data []byte, opts IntakeOptions) (model.PublicationID, error) {
	pubID := model.PublicationID(e.idgen.NewID())

	res, parseErr := intake.Parse(data)
	if parseErr != nil {
		we := classifyIntakeError(pubID, parseErr)
		if err := e.createFailed(ctx, pubID, we.Message); err != nil {
			return pubID, err
		}
		slog.Info("intake failed", "publication", pubID, "error", parseErr)
		return pubID, fmt.Errorf("%w: %w", we, parseErr)
	}

	now := e.now().UTC()
	pub := model.Publication{
		ID:        pubID,
		State:     model.StateIntaking,
		Publisher: res.Publisher,
		Message:   res.Message,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreatePublication(ctx, pub); err != nil {
		return pubID, err
	}
	if err := e.transition(ctx, pubID, model.StateIntaking, model.StateResolving, ""); err != nil {
		return pubID, err
	}

	items, err := e.resolver.Resolve(ctx, pubID, res.Items)
	if err != nil {
		if errors.Is(err, resolver.ErrUnknownBaseIdentifier) {
			we := &WorkflowError{
				Code:          ErrCodeUnknownBase,
				Message:       err.Error(),
				PublicationID: string(pubID),
			}
			if failErr := e.fail(ctx, pubID, we.Message); failErr != nil {
				return pubID, failErr
			}
			return pubID, fmt.Errorf("%w: %w", we, err)
		}
		return pubID, e.failWith(ctx, pubID, err)
	}

	contents := make([][]byte, len(res.Items))
	for i, p := range res.Items {
		contents[i] = p.Content
	}
	if err := e.store.InsertContentItems(ctx, items, contents); err != nil {
		return pubID, e.failWith(ctx, pubID, err)
	}

	// The ledger opens before the state flip so a crash in between never
	// yields an awaiting-acceptance publication with an empty ledger,
	// which Poke would advance past its declared requirements.
	tuples := requirementUnion(res.Items)
	seed := ledger.SeedOptions{
		RolesAccepted:    opts.TrustedRoles,
		LicensesAccepted: opts.TrustedLicenses,
	}
	if err := e.ledger.Open(ctx, pubID, tuples, seed, e.clock.Next()); err != nil {
		return pubID, err
	}
	if err := e.transition(ctx, pubID, model.StateResolving, model.StateAwaitingAcceptance, ""); err != nil {
		return pubID, err
	}

	slog.Info("publication opened",
		"publication", pubID,
		"items", len(items),
		"requirements", len(tuples))

	// A fully pre-accepted (or requirement-free) publication is ready
	// immediately.
	if _, err := e.Poke(ctx, pubID); err != nil {
		return pubID, err
	}
	return pubID, nil
}

// State returns the publication's current status: lifecycle state,
// content items, ledger snapshot, and failure reason if any. Poll
// contract: always reflects the most recently confirmed state.
func (e *Engine) State(ctx context.Context, pubID model.PublicationID) (model.Status, error) {
	pub, err := e.store.GetPublication(ctx, pubID)
	if err != nil {
		return model.Status{}, err
	}
	items, err := e.store.ListContentItems(ctx, pubID)
	if err != nil {
		return model.Status{}, err
	}
	reqs, err := e.ledger.Snapshot(ctx, pubID)
	if err != nil {
		return model.Status{}, err
	}
	return model.Status{Publication: pub, Items: items, Requirements: reqs}, nil
}

// RecordAcceptance transitions exactly the matching requirement tuple
// and pokes the publication's state machine.
//
// Errors: ErrUnauthorized, ledger.ErrUnknownRequirement,
// ledger.ErrAlreadyDecided. Decisions on publications that already left
// awaiting-acceptance still land in the ledger (bookkeeping continues)
// but no longer change the publication state.
func (e *Engine) RecordAcceptance(ctx context.Context, pubID model.PublicationID, identity string, kind model.SubjectKind, subject string, decision model.Decision) error {
	if _, err := e.store.GetPublication(ctx, pubID); err != nil {
		return err
	}
	if err := e.authz.Authorize(ctx, pubID, identity, kind, subject); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	req, err := e.ledger.Record(ctx, pubID, identity, kind, subject, decision, e.clock.Next())
	if err != nil {
		return err
	}

	slog.Info("acceptance recorded",
		"publication", pubID,
		"tuple", req.Tuple(),
		"decision", decision)

	_, err = e.Poke(ctx, pubID)
	return err
}

// RecordAcceptanceAll decides every pending tuple of one kind held by
// an identity - the bulk accept-all convenience. Already-decided tuples
// are skipped. Returns how many tuples were decided.
func (e *Engine) RecordAcceptanceAll(ctx context.Context, pubID model.PublicationID, identity string, kind model.SubjectKind, decision model.Decision) (int, error) {
	if _, err := e.store.GetPublication(ctx, pubID); err != nil {
		return 0, err
	}
	if err := e.authz.Authorize(ctx, pubID, identity, kind, ""); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	decided, err := e.ledger.RecordAll(ctx, pubID, identity, kind, decision, e.clock.Next())
	if err != nil {
		return decided, err
	}
	if decided > 0 {
		if _, err := e.Poke(ctx, pubID); err != nil {
			return decided, err
		}
	}
	return decided, nil
}

// Poke re-evaluates a publication against its ledger and advances
// awaiting-acceptance → ready or awaiting-acceptance → rejected.
// Idempotent; publications in any other state are returned unchanged.
// This is both the event reaction after each recorded decision and the
// crash-recovery entry point.
func (e *Engine) Poke(ctx context.Context, pubID model.PublicationID) (model.State, error) {
	pub, err := e.store.GetPublication(ctx, pubID)
	if err != nil {
		return "", err
	}
	if pub.State != model.StateAwaitingAcceptance {
		// Already advanced, terminal, or not yet at the ledger stage.
		return pub.State, nil
	}

	sum, err := e.ledger.Summarize(ctx, pubID)
	if err != nil {
		return pub.State, err
	}

	switch {
	case sum.HasRejection():
		reason := fmt.Sprintf("requirement rejected: %s", sum.FirstRejection.Tuple())
		if err := e.transition(ctx, pubID, model.StateAwaitingAcceptance, model.StateRejected, reason); err != nil {
			return pub.State, err
		}
		slog.Info("publication rejected", "publication", pubID, "reason", reason)
		return model.StateRejected, nil

	case sum.Satisfied():
		if err := e.transition(ctx, pubID, model.StateAwaitingAcceptance, model.StateReady, ""); err != nil {
			return pub.State, err
		}
		slog.Info("publication ready", "publication", pubID)
		return model.StateReady, nil
	}

	return model.StateAwaitingAcceptance, nil
}

// Locate answers "where is this content" for archived and in-flight
// identifiers. Returns archive.ErrNotFound for unknown identifiers.
func (e *Engine) Locate(ctx context.Context, id model.ContentID) (model.Location, error) {
	return e.store.Locate(ctx, id)
}

// transition applies a guarded state change. A failed guard means a
// concurrent transition won; callers treat that as "someone else
// advanced the machine" and re-read.
func (e *Engine) transition(ctx context.Context, pubID model.PublicationID, from, to model.State, reason string) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s → %s for %s", from, to, pubID)
	}
	ok, err := e.store.UpdateState(ctx, pubID, from, to, reason, e.now().UTC().UnixNano())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("publication %s left state %s concurrently", pubID, from)
	}
	return nil
}

// fail moves a publication to failed from whatever non-terminal state
// it currently holds, preserving the reason.
func (e *Engine) fail(ctx context.Context, pubID model.PublicationID, reason string) error {
	pub, err := e.store.GetPublication(ctx, pubID)
	if err != nil {
		return err
	}
	if pub.State.Terminal() {
		return nil
	}
	return e.transition(ctx, pubID, pub.State, model.StateFailed, reason)
}

// failWith routes an infrastructure error through fail so the
// publication never sits stuck mid-workflow with an empty failure
// reason. The original error is returned either way.
func (e *Engine) failWith(ctx context.Context, pubID model.PublicationID, err error) error {
	if failErr := e.fail(ctx, pubID, err.Error()); failErr != nil {
		return errors.Join(err, failErr)
	}
	return err
}

// createFailed records a publication that failed before any state was
// persisted, so the failure is inspectable via State.
func (e *Engine) createFailed(ctx context.Context, pubID model.PublicationID, reason string) error {
	now := e.now().UTC()
	return e.store.CreatePublication(ctx, model.Publication{
		ID:            pubID,
		State:         model.StateFailed,
		FailureReason: reason,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// requirementUnion deduplicates the declared requirements of all items
// into ledger tuples, preserving first-seen order.
func requirementUnion(items []intake.ParsedItem) []ledger.Tuple {
	seen := make(map[ledger.Tuple]bool)
	tuples := []ledger.Tuple{}
	for _, item := range items {
		for _, spec := range item.Requirements {
			t := ledger.Tuple{Kind: spec.Kind, Subject: spec.Subject, Identity: spec.Identity}
			if seen[t] {
				continue
			}
			seen[t] = true
			tuples = append(tuples, t)
		}
	}
	return tuples
}

// classifyIntakeError maps intake errors to workflow error codes.
func classifyIntakeError(pubID model.PublicationID, err error) *WorkflowError {
	code := ErrCodeMalformedPackage
	switch {
	case errors.Is(err, intake.ErrUnsupportedFormat):
		code = ErrCodeUnsupportedFormat
	case errors.Is(err, intake.ErrInvalidMetadata):
		code = ErrCodeInvalidMetadata
	}
	return &WorkflowError{
		Code:          code,
		Message:       err.Error(),
		PublicationID: string(pubID),
	}
}
