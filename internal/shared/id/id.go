// Package id provides centralized ID generation for kernel resources.
//
// Every ring, instance, thread, token and interface registration draws a
// globally unique, monotonically increasing 64-bit ID from one shared
// counter. IDs are never reused; ID 0 is reserved for the root ring.
//
// Loaded module images additionally carry a ULID tag for log correlation;
// the tag has no identity role inside the kernel.
package id

import (
	"crypto/rand"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Root is the reserved resource ID of the root ring.
const Root uint64 = 0

// Generator issues monotonically increasing resource IDs.
//
// Exhausting the 64-bit space is a structural design limit, not a
// recoverable condition; Next panics on overflow.
type Generator struct {
	last atomic.Uint64
}

// NewGenerator returns a generator whose first issued ID is 1.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next issues the next resource ID.
func (g *Generator) Next() uint64 {
	id := g.last.Add(1)
	if id == 0 {
		panic("id: resource ID space exhausted")
	}
	return id
}

// Tagger generates ULID tags for loaded module images.
type Tagger struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewTagger returns a tagger backed by cryptographic entropy.
func NewTagger() *Tagger {
	return &Tagger{entropy: rand.Reader}
}

// NewTaggerWithEntropy returns a tagger with a custom entropy source, for
// deterministic tests.
func NewTaggerWithEntropy(entropy io.Reader) *Tagger {
	return &Tagger{entropy: entropy}
}

// Tag generates a new module image tag.
func (t *Tagger) Tag() ulid.ULID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), t.entropy)
}
