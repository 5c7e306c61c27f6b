package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator returns predetermined identifiers for testing.
//
// This enables deterministic publication and content identifiers for
// golden trace comparison. When the fixed list is exhausted the
// generator falls back to a deterministic "gen-N" sequence rather than
// panicking, because resolver collision checks may consume extra IDs.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedIDGenerator("pub-1", "doc-1")
//	gen.NewID() // "pub-1"
//	gen.NewID() // "doc-1"
//	gen.NewID() // "gen-3"
func NewFixedIDGenerator(ids ...string) *FixedIDGenerator {
	return &FixedIDGenerator{ids: ids}
}

// NewID returns the next predetermined identifier.
func (g *FixedIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.ids) {
		return g.ids[g.idx-1]
	}
	return fmt.Sprintf("gen-%d", g.idx)
}
