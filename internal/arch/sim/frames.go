package sim

import (
	"sync"

	"github.com/nucleus-os/nucleus/internal/arch"
)

// frameBase keeps simulated frames clear of the zero page so a zero PhysAddr
// never appears as a valid frame.
const frameBase arch.PhysAddr = 0x10_0000

// Frames is a bounded page-frame source: a bump allocator with a free list.
type Frames struct {
	mu        sync.Mutex
	limit     int
	bumped    int
	allocated int
	free      []arch.PhysAddr
}

// NewFrames returns a source holding limit frames.
func NewFrames(limit int) *Frames {
	return &Frames{limit: limit}
}

// Allocate returns a free frame, or false when the budget is exhausted.
func (f *Frames) Allocate() (arch.PhysAddr, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n := len(f.free); n > 0 {
		phys := f.free[n-1]
		f.free = f.free[:n-1]
		f.allocated++
		return phys, true
	}
	if f.bumped >= f.limit {
		return 0, false
	}
	phys := frameBase + arch.PhysAddr(f.bumped)*arch.PageSize
	f.bumped++
	f.allocated++
	return phys, true
}

// Free returns a frame to the source.
func (f *Frames) Free(phys arch.PhysAddr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocated--
	f.free = append(f.free, phys)
}

// Allocated reports the number of frames currently handed out.
func (f *Frames) Allocated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocated
}
