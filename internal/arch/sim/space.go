package sim

import (
	"sync"

	"github.com/nucleus-os/nucleus/internal/arch"
)

// Fixed user segment layout. Ranges are inclusive. The data segment sits low
// so small virtual addresses are mappable token targets; code and stacks are
// placed above it.
const (
	userDataFirst  arch.VirtAddr = 0x0000_1000
	userDataLast   arch.VirtAddr = 0x7FFF_FFFF
	userCodeFirst  arch.VirtAddr = 0x8000_0000
	userCodeLast   arch.VirtAddr = 0x9FFF_FFFF
	userStackFirst arch.VirtAddr = 0xA000_0000
	userStackLast  arch.VirtAddr = 0xBFFF_FFFF
)

// view is a by-reference window into another mapper, established by
// Segment.ShareInto or a shallow duplication.
type view struct {
	src         *Mapper
	first, last arch.VirtAddr
}

// Mapper is one simulated user address space: privately owned page mappings
// plus read-only views into shared mappers.
type Mapper struct {
	arch.UserMapperBase

	mu    sync.Mutex
	pages map[arch.VirtAddr]arch.PhysAddr
	views []view
	freed bool
}

var _ arch.UserMapper = (*Mapper)(nil)

// lookup resolves virt through private pages first, then shared views.
// Callers hold m.mu; view sources take their own lock.
func (m *Mapper) lookup(virt arch.VirtAddr) (arch.PhysAddr, bool) {
	if phys, ok := m.pages[virt]; ok {
		return phys, true
	}
	for _, v := range m.views {
		if virt < v.first || virt > v.last {
			continue
		}
		v.src.mu.Lock()
		phys, ok := v.src.pages[virt]
		v.src.mu.Unlock()
		if ok {
			return phys, true
		}
	}
	return 0, false
}

// Translate resolves a virtual address to its frame, for assertions and the
// simulator's fault checks.
func (m *Mapper) Translate(virt arch.VirtAddr) (arch.PhysAddr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(arch.PageAlign(virt))
}

// Space is the simulated AddressSpace.
type Space struct{}

// NewSpace returns the simulated address-space factory.
func NewSpace() *Space { return &Space{} }

// NewUserSpace allocates a fresh, empty address space.
func (s *Space) NewUserSpace() (arch.UserMapper, error) {
	return &Mapper{pages: make(map[arch.VirtAddr]arch.PhysAddr)}, nil
}

// DuplicateUserSpaceShallow returns a new mapper seeing all of src by
// reference. Private additions land only in the duplicate.
func (s *Space) DuplicateUserSpaceShallow(src arch.UserMapper) (arch.UserMapper, error) {
	sm := src.(*Mapper)
	return &Mapper{
		pages: make(map[arch.VirtAddr]arch.PhysAddr),
		views: []view{{src: sm, first: 0, last: ^arch.VirtAddr(0)}},
	}, nil
}

// FreeUserSpaceDeep reclaims every privately owned frame and retires the
// mapper. Shared views are dropped, never reclaimed through the duplicate.
func (s *Space) FreeUserSpaceDeep(m arch.UserMapper, frames arch.FrameAllocator) {
	sm := m.(*Mapper)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for virt, phys := range sm.pages {
		frames.Free(phys)
		delete(sm.pages, virt)
	}
	sm.views = nil
	sm.freed = true
}

// FreeUserSpaceHandle retires the mapper without touching frames.
func (s *Space) FreeUserSpaceHandle(m arch.UserMapper) {
	sm := m.(*Mapper)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.pages = make(map[arch.VirtAddr]arch.PhysAddr)
	sm.views = nil
	sm.freed = true
}

// UserCode returns the read-only executable segment view.
func (s *Space) UserCode() arch.Segment {
	return &segment{name: "code", first: userCodeFirst, last: userCodeLast}
}

// UserData returns the general data segment view.
func (s *Space) UserData() arch.Segment {
	return &segment{name: "data", first: userDataFirst, last: userDataLast}
}

// UserThreadStack returns the per-thread stack segment view.
func (s *Space) UserThreadStack() arch.Segment {
	return &segment{name: "stack", first: userStackFirst, last: userStackLast}
}
