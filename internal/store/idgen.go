package store

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces store-assigned document identifiers.
// Implemented by UUIDv7IDs (production) and FixedIDs (tests).
type IDGenerator interface {
	NewID() string
}

// UUIDv7IDs generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so identifiers
// sort roughly by creation time, which keeps browsing a collection in
// key order tolerable.
//
// Thread-safety: UUIDv7IDs is stateless and safe for concurrent use.
type UUIDv7IDs struct{}

// NewID creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7IDs) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedIDs returns predetermined identifiers for testing.
// Enables deterministic keys in fixtures and golden comparisons.
//
// Thread-safety: FixedIDs is safe for concurrent use via internal mutex.
type FixedIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDs creates a generator that returns identifiers in order.
// Panics once all identifiers are consumed - fail fast on a test that
// creates more documents than it declared.
func NewFixedIDs(ids ...string) *FixedIDs {
	return &FixedIDs{ids: ids}
}

// NewID returns the next predetermined identifier.
func (g *FixedIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedIDs: all identifiers exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
