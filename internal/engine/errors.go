package engine

import (
	"errors"
	"fmt"
)

// Protocol errors, reported synchronously with no state change.
var (
	// ErrNotReady reports a submit attempt on a publication that is not
	// in the ready state.
	ErrNotReady = errors.New("publication not ready")

	// ErrUnauthorized reports an identity that may not decide the named
	// subject for the publication.
	ErrUnauthorized = errors.New("identity not authorized")
)

// WorkflowError represents a failure that moved a publication to a
// terminal state. It carries structured fields for diagnostics.
type WorkflowError struct {
	// Code identifies the failure category.
	Code WorkflowErrorCode

	// Message is a human-readable description, also persisted as the
	// publication's failure reason.
	Message string

	// PublicationID identifies the affected publication.
	PublicationID string
}

// WorkflowErrorCode categorizes workflow failures.
type WorkflowErrorCode string

const (
	// ErrCodeMalformedPackage indicates package bytes that failed to parse.
	ErrCodeMalformedPackage WorkflowErrorCode = "MALFORMED_PACKAGE"

	// ErrCodeUnsupportedFormat indicates an unknown package format tag.
	ErrCodeUnsupportedFormat WorkflowErrorCode = "UNSUPPORTED_FORMAT"

	// ErrCodeInvalidMetadata indicates zero items or empty subjects.
	ErrCodeInvalidMetadata WorkflowErrorCode = "INVALID_METADATA"

	// ErrCodeUnknownBase indicates a revision target missing from the archive.
	ErrCodeUnknownBase WorkflowErrorCode = "UNKNOWN_BASE_IDENTIFIER"

	// ErrCodeCommitFailed indicates an unrecoverable commit error.
	ErrCodeCommitFailed WorkflowErrorCode = "COMMIT_FAILED"
)

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	if e.PublicationID != "" {
		return fmt.Sprintf("%s: %s (publication=%s)", e.Code, e.Message, e.PublicationID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInputError reports whether the error is one of the input error
// categories that fail a publication without retry.
func IsInputError(err error) bool {
	var we *WorkflowError
	if !errors.As(err, &we) {
		return false
	}
	switch we.Code {
	case ErrCodeMalformedPackage, ErrCodeUnsupportedFormat,
		ErrCodeInvalidMetadata, ErrCodeUnknownBase:
		return true
	}
	return false
}
