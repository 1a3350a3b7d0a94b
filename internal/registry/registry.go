// Package registry implements the kernel's identity table: an O(1) ID-to-value
// store keyed by densely allocated 64-bit resource IDs.
//
// Every live kernel resource is reachable through exactly one Handle. IDs are
// issued monotonically from a single shared counter and never reused, so a
// stale ID simply fails to resolve instead of aliasing a recycled slot.
// Raw pointers are never used as identity.
package registry

import (
	"sync"

	"github.com/nucleus-os/nucleus/internal/shared/id"
)

// Handle is an owned, lockable reference to a registered resource.
//
// The handle's mutex guards the value; all access goes through With. Handles
// are freely shareable across cores, and duplication is an ordinary pointer
// copy; there is no bytewise cloning of kernel state.
type Handle[T any] struct {
	id  uint64
	mu  sync.Mutex
	val *T
}

// ID returns the resource ID. IDs are unique for the process lifetime.
func (h *Handle[T]) ID() uint64 { return h.id }

// With runs fn with exclusive access to the resource.
func (h *Handle[T]) With(fn func(*T)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.val)
}

// Registry is the global identity table.
type Registry struct {
	mu   sync.RWMutex
	gen  *id.Generator
	ents map[uint64]any
}

// New returns an empty registry drawing IDs from gen.
func New(gen *id.Generator) *Registry {
	return &Registry{gen: gen, ents: make(map[uint64]any)}
}

// Add registers val under a freshly issued ID and returns its handle.
func Add[T any](r *Registry, val *T) *Handle[T] {
	h := &Handle[T]{id: r.gen.Next(), val: val}
	r.mu.Lock()
	r.ents[h.id] = h
	r.mu.Unlock()
	return h
}

// AddRoot registers val under the reserved root ID 0.
//
// Exactly one resource, the root ring, may occupy ID 0; a second call is a
// kernel bug.
func AddRoot[T any](r *Registry, val *T) *Handle[T] {
	h := &Handle[T]{id: id.Root, val: val}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ents[id.Root]; ok {
		panic("registry: root ID already occupied")
	}
	r.ents[id.Root] = h
	return h
}

// Lookup resolves an ID to a handle of the requested type. It returns false
// if the ID is absent or registered as a different resource type.
func Lookup[T any](r *Registry, rid uint64) (*Handle[T], bool) {
	r.mu.RLock()
	ent, ok := r.ents[rid]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	h, ok := ent.(*Handle[T])
	return h, ok
}

// Remove drops the ID from the table. Outstanding handles remain valid; the
// ID simply stops resolving.
func (r *Registry) Remove(rid uint64) {
	r.mu.Lock()
	delete(r.ents, rid)
	r.mu.Unlock()
}

// Len reports the number of registered resources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ents)
}
