package sim

import "github.com/nucleus-os/nucleus/internal/arch"

// segment implements arch.Segment over Mapper page maps.
type segment struct {
	name        string
	first, last arch.VirtAddr
}

func (s *segment) Range() (arch.VirtAddr, arch.VirtAddr) {
	return s.first, s.last
}

func (s *segment) check(virt arch.VirtAddr) error {
	if virt%arch.PageSize != 0 {
		return arch.MapVirtNotAligned
	}
	if virt < s.first || virt > s.last {
		return arch.MapVirtOutOfRange
	}
	return nil
}

func (s *segment) Map(m arch.UserMapper, virt arch.VirtAddr, phys arch.PhysAddr) error {
	if err := s.check(virt); err != nil {
		return err
	}
	sm := m.(*Mapper)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.lookup(virt); ok {
		return arch.MapExists
	}
	sm.pages[virt] = phys
	return nil
}

func (s *segment) Unmap(m arch.UserMapper, virt arch.VirtAddr) (arch.PhysAddr, error) {
	if virt%arch.PageSize != 0 {
		return 0, arch.UnmapVirtNotAligned
	}
	if virt < s.first || virt > s.last {
		return 0, arch.UnmapVirtOutOfRange
	}
	sm := m.(*Mapper)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	phys, ok := sm.pages[virt]
	if !ok {
		// Shared views are not unmappable through a duplicate.
		return 0, arch.UnmapNotMapped
	}
	delete(sm.pages, virt)
	return phys, nil
}

func (s *segment) Remap(m arch.UserMapper, virt arch.VirtAddr, phys arch.PhysAddr) (arch.PhysAddr, bool, error) {
	if err := s.check(virt); err != nil {
		return 0, false, err
	}
	sm := m.(*Mapper)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	old, had := sm.pages[virt]
	sm.pages[virt] = phys
	return old, had, nil
}

func (s *segment) ShareInto(dst, src arch.UserMapper) error {
	dm := dst.(*Mapper)
	sm := src.(*Mapper)
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.views = append(dm.views, view{src: sm, first: s.first, last: s.last})
	return nil
}

func (s *segment) UnmapAllAndReclaim(m arch.UserMapper, frames arch.FrameAllocator) {
	sm := m.(*Mapper)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for virt, phys := range sm.pages {
		if virt < s.first || virt > s.last {
			continue
		}
		frames.Free(phys)
		delete(sm.pages, virt)
	}
}
