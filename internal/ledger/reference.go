package ledger

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const referencePrefix = "TXN"

// ReferenceGenerator produces transaction references that sort by creation
// time: "TXN" followed by a monotonic ULID.
type ReferenceGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewReferenceGenerator builds a generator seeded from crypto/rand.
func NewReferenceGenerator() *ReferenceGenerator {
	return &ReferenceGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New returns a fresh reference stamped with at.
func (g *ReferenceGenerator) New(at time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(at), g.entropy)
	return referencePrefix + id.String()
}
