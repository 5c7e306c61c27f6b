package model

import "github.com/google/uuid"

// IDGenerator mints publication and pending content identifiers.
// Implemented by UUIDv7Generator (production) and testutil.FixedIDGenerator
// (tests).
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so identifiers
// sort by creation time, which keeps archive listings and logs readable.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
