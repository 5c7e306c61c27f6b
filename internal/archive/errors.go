package archive

import (
	"errors"
	"fmt"

	"github.com/roach88/presswork/internal/model"
)

// VersionConflictError reports a commit whose advisory candidate version
// lost a race: another publication archived the identifier first. The
// whole commit rolls back; the caller may re-resolve candidates and
// retry.
type VersionConflictError struct {
	ContentID model.ContentID
	Candidate int64 // version the publication resolved to
	Next      int64 // version the archive would actually assign
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: candidate %d, archive next is %d",
		e.ContentID, e.Candidate, e.Next)
}

// IsVersionConflict reports whether err is a VersionConflictError.
// Uses errors.As to handle wrapped errors.
func IsVersionConflict(err error) bool {
	var vc *VersionConflictError
	return errors.As(err, &vc)
}

// InconsistentCommitError reports a replayed commit that found one of
// its own prior records at a different version than the current target.
// This should not happen in normal operation and requires operator
// reconciliation; the publication is failed rather than silently
// patched.
type InconsistentCommitError struct {
	PublicationID model.PublicationID
	ContentID     model.ContentID
	Recorded      int64
	Target        int64
}

func (e *InconsistentCommitError) Error() string {
	return fmt.Sprintf("inconsistent commit for publication %s: %s recorded at %d, target %d",
		e.PublicationID, e.ContentID, e.Recorded, e.Target)
}
