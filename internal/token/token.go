// Package token implements memory tokens: capability-like handles over a
// contiguous run of same-sized pages whose backing frames are committed
// lazily, one page at a time, on first access.
//
// A token carries no access policy of its own; interfaces decide who may map
// it. Each token is owned by exactly one instance until forgotten or
// transferred.
package token

import "github.com/nucleus-os/nucleus/internal/arch"

// page is one lazily committed backing slot.
type page struct {
	phys arch.PhysAddr
	ok   bool
}

// Token is ownership of a run of pages. Backing frames start absent and are
// allocated on first access; a cached counter tracks how many are committed.
type Token struct {
	pageSize  int
	pages     []page
	committed int
}

// New returns a token over the given number of 4 KiB pages, none committed.
func New(pages int) *Token {
	return &Token{
		pageSize: arch.PageSize,
		pages:    make([]page, pages),
	}
}

// PageSize returns the size of each page in bytes.
func (t *Token) PageSize() int { return t.pageSize }

// PageCount returns the number of pages the token spans.
func (t *Token) PageCount() int { return len(t.pages) }

// Size returns the token's total span in bytes.
func (t *Token) Size() int { return t.pageSize * len(t.pages) }

// Committed returns the number of pages currently backed by a frame.
func (t *Token) Committed() int { return t.committed }

// Get returns the backing frame of the page at idx, or false if the page has
// not been committed. Out-of-bounds indexes are kernel bugs.
func (t *Token) Get(idx int) (arch.PhysAddr, bool) {
	p := t.pages[idx]
	return p.phys, p.ok
}

// GetOrAllocate returns the backing frame of the page at idx, committing it
// from the frame source if it is unset. Returns false only if the frame
// source is exhausted. Committing an already-backed page is a no-op that
// returns the existing frame.
func (t *Token) GetOrAllocate(idx int, frames arch.FrameAllocator) (arch.PhysAddr, bool) {
	p := &t.pages[idx]
	if p.ok {
		return p.phys, true
	}
	phys, ok := frames.Allocate()
	if !ok {
		return 0, false
	}
	p.phys = phys
	p.ok = true
	t.committed++
	return phys, true
}

// ReleaseAll returns every committed frame to the source and clears the
// token. Called when the owning instance forgets the token for good.
func (t *Token) ReleaseAll(frames arch.FrameAllocator) {
	for i := range t.pages {
		if t.pages[i].ok {
			frames.Free(t.pages[i].phys)
			t.pages[i] = page{}
		}
	}
	t.committed = 0
}
