package proc

import (
	"fmt"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/nucleus-os/nucleus/internal/arch"
	"github.com/nucleus-os/nucleus/internal/registry"
)

// SegmentImage is one read-only page run of a loaded executable: a base
// virtual address inside the code segment plus the frames holding the pages.
type SegmentImage struct {
	Base   arch.VirtAddr
	Frames []arch.PhysAddr
}

// Module is an immutable loaded executable image. Its read-only segments are
// mapped once into a master address space and shared by reference into every
// instance spawned from it. The image is reference counted; the frames are
// reclaimed when the last referencing instance is dropped.
type Module struct {
	id     uint64
	tag    ulid.ULID
	mapper arch.UserMapper
	pages  int
	refs   atomic.Int64
	env    *Env
}

// NewModule mounts the given read-only segment images into a fresh master
// address space and registers the module. The loader transfers frame
// ownership to the module. The returned handle carries one reference.
func NewModule(env *Env, tag ulid.ULID, segments []SegmentImage) (*registry.Handle[Module], error) {
	as := env.Arch.AddressSpace()
	um, err := as.NewUserSpace()
	if err != nil {
		return nil, fmt.Errorf("allocating module space: %w", err)
	}

	code := as.UserCode()
	pages := 0
	for _, seg := range segments {
		virt := seg.Base
		for _, phys := range seg.Frames {
			if err := code.Map(um, virt, phys); err != nil {
				as.FreeUserSpaceDeep(um, env.Frames)
				return nil, fmt.Errorf("overlaying module segment at %#x: %w", virt, err)
			}
			virt += arch.PageSize
			pages++
		}
	}

	m := &Module{tag: tag, mapper: um, pages: pages, env: env}
	m.refs.Store(1)
	h := registry.Add(env.Reg, m)
	h.With(func(mm *Module) { mm.id = h.ID() })
	return h, nil
}

// ID returns the module's resource ID.
func (m *Module) ID() uint64 { return m.id }

// Tag returns the image's log-correlation tag.
func (m *Module) Tag() ulid.ULID { return m.tag }

// Mapper returns the master address space holding the read-only overlays.
func (m *Module) Mapper() arch.UserMapper { return m.mapper }

// Pages returns the number of read-only pages the image spans.
func (m *Module) Pages() int { return m.pages }

// retain adds a reference on behalf of a new instance.
func (m *Module) retain() { m.refs.Add(1) }

// ReleaseModule drops one reference; the last drop reclaims the image's
// frames and retires the registration.
func ReleaseModule(env *Env, h *registry.Handle[Module]) {
	var last bool
	var um arch.UserMapper
	h.With(func(m *Module) {
		if m.refs.Add(-1) == 0 {
			last = true
			um = m.mapper
		}
	})
	if !last {
		return
	}
	env.Arch.AddressSpace().FreeUserSpaceDeep(um, env.Frames)
	env.Reg.Remove(h.ID())
}
