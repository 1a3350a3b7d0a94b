package proc

import (
	"fmt"

	"github.com/nucleus-os/nucleus/internal/arch"
	"github.com/nucleus-os/nucleus/internal/registry"
	"github.com/nucleus-os/nucleus/internal/token"
)

// sharedDataBase is where an instance's shared writable data segment is
// provisioned, at the top of the data segment so the low range stays free
// for token reservations.
const sharedDataBase arch.VirtAddr = 0x7FFF_0000

// sharedDataPages is the number of writable pages provisioned per instance.
const sharedDataPages = 4

// Reservation marks one virtual page as backed by (token, page index),
// committed lazily on fault.
type Reservation struct {
	Token     *registry.Handle[token.Token]
	PageIndex int
}

// Instance is a mounted, running copy of a module: a unique address space
// with the module's read-only segments overlaid by reference and a private
// writable data segment, plus the instance's threads, tokens and token
// reservations.
type Instance struct {
	id      uint64
	module  *registry.Handle[Module]
	ringID  uint64
	threads *registry.Table[*registry.Handle[Thread]]
	tokens  *registry.Table[*registry.Handle[token.Token]]
	// tokenVMap maps a virtual page base to its reservation. Every entry's
	// token is present in tokens; ForgetToken enforces it.
	tokenVMap *registry.Table[Reservation]
	mapper    arch.UserMapper
	handle    arch.InstanceHandle
	refs      int
	env       *Env
}

// NewInstance mounts module onto ring: a fresh user address space, the
// module's read-only overlay shared by reference, and a freshly backed
// writable data segment. The returned handle carries one reference.
func NewInstance(env *Env, module *registry.Handle[Module], ring *registry.Handle[Ring]) (*registry.Handle[Instance], error) {
	as := env.Arch.AddressSpace()
	um, err := as.NewUserSpace()
	if err != nil {
		return nil, fmt.Errorf("allocating instance space: %w", err)
	}

	var moduleMapper arch.UserMapper
	module.With(func(m *Module) {
		m.retain()
		moduleMapper = m.mapper
	})

	if err := as.UserCode().ShareInto(um, moduleMapper); err != nil {
		as.FreeUserSpaceDeep(um, env.Frames)
		ReleaseModule(env, module)
		return nil, fmt.Errorf("overlaying module code: %w", err)
	}

	data := as.UserData()
	for i := 0; i < sharedDataPages; i++ {
		phys, ok := env.Frames.Allocate()
		if !ok {
			as.FreeUserSpaceDeep(um, env.Frames)
			ReleaseModule(env, module)
			return nil, fmt.Errorf("provisioning data segment: %w", arch.MapOutOfMemory)
		}
		if err := data.Map(um, sharedDataBase+arch.VirtAddr(i)*arch.PageSize, phys); err != nil {
			env.Frames.Free(phys)
			as.FreeUserSpaceDeep(um, env.Frames)
			ReleaseModule(env, module)
			return nil, fmt.Errorf("provisioning data segment: %w", err)
		}
	}

	ih, err := env.Arch.NewInstanceHandle(um)
	if err != nil {
		as.FreeUserSpaceDeep(um, env.Frames)
		ReleaseModule(env, module)
		return nil, fmt.Errorf("creating instance handle: %w", err)
	}

	inst := &Instance{
		module:    module,
		ringID:    ring.ID(),
		threads:   registry.NewTable[*registry.Handle[Thread]](),
		tokens:    registry.NewTable[*registry.Handle[token.Token]](),
		tokenVMap: registry.NewTable[Reservation](),
		mapper:    um,
		handle:    ih,
		refs:      1,
		env:       env,
	}
	h := registry.Add(env.Reg, inst)
	h.With(func(i *Instance) { i.id = h.ID() })
	ring.With(func(r *Ring) { r.attach(h) })
	return h, nil
}

// ID returns the instance's resource ID.
func (i *Instance) ID() uint64 { return i.id }

// Module returns the handle of the image this instance was spawned from.
func (i *Instance) Module() *registry.Handle[Module] { return i.module }

// RingID returns the ID of the ring the instance is mounted on.
func (i *Instance) RingID() uint64 { return i.ringID }

// Ring upgrades the weak ring reference. It fails if the ring is gone.
func (i *Instance) Ring() (*registry.Handle[Ring], bool) {
	return registry.Lookup[Ring](i.env.Reg, i.ringID)
}

// Mapper returns the instance's address-space handle.
func (i *Instance) Mapper() arch.UserMapper { return i.mapper }

// Handle returns the architecture instance handle.
func (i *Instance) Handle() arch.InstanceHandle { return i.handle }

// ThreadCount reports the number of live threads.
func (i *Instance) ThreadCount() int { return i.threads.Len() }

// Thread looks up a live thread of this instance by ID.
func (i *Instance) Thread(threadID uint64) (*registry.Handle[Thread], bool) {
	return i.threads.Get(threadID)
}

// Token looks up an owned token by ID.
func (i *Instance) Token(tokenID uint64) (*registry.Handle[token.Token], bool) {
	return i.tokens.Get(tokenID)
}

// InsertToken takes ownership of a token, returning its ID.
func (i *Instance) InsertToken(t *registry.Handle[token.Token]) uint64 {
	i.tokens.Insert(t.ID(), t)
	return t.ID()
}

// ForgetToken releases ownership of a token, dropping any reservations that
// referenced it so the vmap invariant holds. The token itself is returned to
// the caller (transfer), not destroyed.
func (i *Instance) ForgetToken(tokenID uint64) (*registry.Handle[token.Token], bool) {
	t, ok := i.tokens.Remove(tokenID)
	if !ok {
		return nil, false
	}
	var stale []uint64
	i.tokenVMap.Range(func(virt uint64, res Reservation) bool {
		if res.Token.ID() == tokenID {
			stale = append(stale, virt)
		}
		return true
	})
	for _, virt := range stale {
		i.tokenVMap.Remove(virt)
	}
	return t, true
}

// TryMapTokenAt reserves the token's page run at virt without backing any
// page. Every page is checked for data-segment containment and for an
// existing reservation; any conflict rejects the whole reservation and
// leaves the vmap untouched.
func (i *Instance) TryMapTokenAt(t *registry.Handle[token.Token], virt arch.VirtAddr) error {
	if _, ok := i.tokens.Get(t.ID()); !ok {
		return TokenMapBadToken
	}

	var pageCount, pageSize int
	t.With(func(tok *token.Token) {
		pageCount = tok.PageCount()
		pageSize = tok.PageSize()
	})

	if virt%arch.VirtAddr(pageSize) != 0 {
		return TokenMapVirtNotAligned
	}

	data := i.env.Arch.AddressSpace().UserData()
	for idx := 0; idx < pageCount; idx++ {
		base := virt + arch.VirtAddr(idx*pageSize)
		if !arch.Contains(data, base) || !arch.Contains(data, base+arch.VirtAddr(pageSize)-1) {
			return TokenMapVirtOutOfRange
		}
		if i.tokenVMap.Contains(uint64(base)) {
			return TokenMapConflict
		}
	}

	for idx := 0; idx < pageCount; idx++ {
		base := virt + arch.VirtAddr(idx*pageSize)
		i.tokenVMap.Insert(uint64(base), Reservation{Token: t, PageIndex: idx})
	}
	return nil
}

// TryCommitTokenAt resolves a page fault at virt against the instance's
// reservations: the faulting address is rounded down to its page, the
// backing frame is allocated if the token page is still unset, and the
// page-table mapping is installed. Re-committing an already-backed page
// re-maps it rather than re-allocating, so the frame is stable across
// repeat faults.
func (i *Instance) TryCommitTokenAt(virt arch.VirtAddr) (arch.PhysAddr, error) {
	base := arch.PageAlign(virt)
	res, ok := i.tokenVMap.Get(uint64(base))
	if !ok {
		return 0, CommitBadVirt
	}

	var phys arch.PhysAddr
	var allocated bool
	res.Token.With(func(tok *token.Token) {
		phys, allocated = tok.GetOrAllocate(res.PageIndex, i.env.Frames)
	})
	if !allocated {
		return 0, CommitOutOfMemory
	}

	data := i.env.Arch.AddressSpace().UserData()
	if _, _, err := data.Remap(i.mapper, base, phys); err != nil {
		return 0, fmt.Errorf("%w: %w", CommitMapFailed, err)
	}
	return phys, nil
}

// retain adds an external strong reference.
func (i *Instance) retain() { i.refs++ }

// ReleaseInstance drops one external reference. The instance is destroyed
// once no reference and no thread remains: owned tokens are released, the
// address space is reclaimed, the module reference is dropped and the ring
// detaches it.
func ReleaseInstance(env *Env, h *registry.Handle[Instance]) {
	var gone bool
	h.With(func(i *Instance) {
		i.refs--
		gone = i.refs <= 0 && i.threads.Len() == 0
	})
	if gone {
		destroyInstance(env, h)
	}
}

// reapInstanceIfIdle destroys the instance if its last thread is gone and no
// external reference remains. Called after a thread is reaped.
func reapInstanceIfIdle(env *Env, h *registry.Handle[Instance]) {
	var gone bool
	h.With(func(i *Instance) {
		gone = i.refs <= 0 && i.threads.Len() == 0
	})
	if gone {
		destroyInstance(env, h)
	}
}

func destroyInstance(env *Env, h *registry.Handle[Instance]) {
	var (
		um     arch.UserMapper
		module *registry.Handle[Module]
		ringID uint64
		toks   []*registry.Handle[token.Token]
	)
	h.With(func(i *Instance) {
		um = i.mapper
		module = i.module
		ringID = i.ringID
		i.tokens.Range(func(_ uint64, t *registry.Handle[token.Token]) bool {
			toks = append(toks, t)
			return true
		})
	})

	for _, t := range toks {
		t.With(func(tok *token.Token) { tok.ReleaseAll(env.Frames) })
		env.Reg.Remove(t.ID())
	}
	env.Arch.AddressSpace().FreeUserSpaceDeep(um, env.Frames)
	ReleaseModule(env, module)
	if ring, ok := registry.Lookup[Ring](env.Reg, ringID); ok {
		ring.With(func(r *Ring) { r.detach(h.ID()) })
	}
	env.Reg.Remove(h.ID())
}
