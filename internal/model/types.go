package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PublicationID identifies one submission attempt, from intake through
// archival or terminal failure. Distinct from content identifiers.
type PublicationID string

// ContentID is the stable name for a document or resource across all of
// its versions. Newly minted identifiers are "pending" until their first
// version is committed to the archive.
type ContentID string

// ItemKind distinguishes the two content item flavors.
type ItemKind string

const (
	KindDocument ItemKind = "document"
	KindResource ItemKind = "resource"
)

// SubjectKind distinguishes the two acceptance requirement flavors.
type SubjectKind string

const (
	SubjectRole    SubjectKind = "role"
	SubjectLicense SubjectKind = "license"
)

// Decision is an identity's verdict on a requirement tuple.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// RequirementState tracks one requirement tuple. Decisions are terminal:
// once a tuple leaves pending it never changes again.
type RequirementState string

const (
	RequirementPending  RequirementState = "pending"
	RequirementAccepted RequirementState = "accepted"
	RequirementRejected RequirementState = "rejected"
)

// Publication is the unit of work for one submission event.
type Publication struct {
	ID        PublicationID
	State     State
	Publisher string
	Message   string

	// FailureReason is set on the rejected and failed states and holds
	// the offending tuple or error detail for caller inspection.
	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContentItem is one document or resource within a publication.
// Immutable once created.
type ContentItem struct {
	PublicationID PublicationID
	ContentID     ContentID
	Hash          string
	Kind          ItemKind
	Title         string

	// Position preserves the declared order of items in the package.
	Position int

	// IsNew reports whether ContentID was minted for this publication
	// (first version) rather than resolved against the archive.
	IsNew bool

	// CandidateVersion is the advisory next version assigned at
	// resolution time. The committed version is finalized inside the
	// coordinator's transaction and may differ when publications race.
	CandidateVersion int64
}

// Requirement is one (subject kind, subject value, identity) tuple scoped
// to a publication, with its decision state.
type Requirement struct {
	PublicationID PublicationID
	Kind          SubjectKind
	Subject       string
	Identity      string
	State         RequirementState

	// DecidedSeq is the logical clock value at decision time, zero while
	// pending. Used for deterministic ordering in traces, never wall time.
	DecidedSeq int64
}

// Tuple renders the requirement's identity tuple for diagnostics,
// e.g. "license:cc-by-4.0 by user:alice".
func (r Requirement) Tuple() string {
	return fmt.Sprintf("%s:%s by %s", r.Kind, r.Subject, r.Identity)
}

// ArchiveRecord is one committed, immutable version of a content
// identifier.
type ArchiveRecord struct {
	ContentID     ContentID
	Version       int64
	Hash          string
	Kind          ItemKind
	PublicationID PublicationID
	Seq           int64
}

// Ref renders the record's identifier reference, e.g.
// "b2f81c…@4".
func (r ArchiveRecord) Ref() string {
	return FormatRef(r.ContentID, r.Version)
}

// Status is the full poll answer for one publication.
type Status struct {
	Publication Publication
	Items       []ContentItem
	// Requirements is the ledger snapshot; empty before the ledger opens.
	Requirements []Requirement
}

// Location answers "where is this content" for both archived and
// in-flight identifiers.
type Location struct {
	ContentID ContentID

	// Archived fields: set when at least one version is committed.
	Archived bool
	Version  int64
	Hash     string

	// Pending fields: set when the identifier belongs to an in-flight
	// publication that has not yet archived.
	PendingPublication PublicationID
	PendingState       State
}

// SubmitResult reports a completed commit. Refs are ordered by the
// publication's item positions.
type SubmitResult struct {
	PublicationID PublicationID
	Records       []ArchiveRecord
}

// FormatRef renders "id@version".
func FormatRef(id ContentID, version int64) string {
	return fmt.Sprintf("%s@%d", id, version)
}

// ParseRef splits "id" or "id@version" into its parts. A missing version
// yields zero. The version, when present, must be a positive integer.
func ParseRef(ref string) (ContentID, int64, error) {
	id, ver, found := strings.Cut(ref, "@")
	if id == "" {
		return "", 0, fmt.Errorf("empty content identifier in %q", ref)
	}
	if !found {
		return ContentID(id), 0, nil
	}
	n, err := strconv.ParseInt(ver, 10, 64)
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("invalid version in %q", ref)
	}
	return ContentID(id), n, nil
}
