package proc

import (
	"github.com/nucleus-os/nucleus/internal/registry"
	"github.com/nucleus-os/nucleus/internal/shared/id"
)

// Ring is a privilege/namespace domain hosting instances. Rings own their
// instances strongly; instances refer back to their ring only by ID.
//
// The root ring is created once at boot under the reserved ID 0 and lives
// for the process lifetime.
type Ring struct {
	id        uint64
	parentID  uint64
	instances *registry.Table[*registry.Handle[Instance]]
}

// NewRootRing creates the root ring under ID 0.
func NewRootRing(env *Env) *registry.Handle[Ring] {
	r := &Ring{
		id:        id.Root,
		parentID:  id.Root,
		instances: registry.NewTable[*registry.Handle[Instance]](),
	}
	return registry.AddRoot(env.Reg, r)
}

// NewRing creates a child ring of parent.
func NewRing(env *Env, parent *registry.Handle[Ring]) *registry.Handle[Ring] {
	r := &Ring{
		parentID:  parent.ID(),
		instances: registry.NewTable[*registry.Handle[Instance]](),
	}
	h := registry.Add(env.Reg, r)
	h.With(func(rr *Ring) { rr.id = h.ID() })
	return h
}

// ID returns the ring's resource ID.
func (r *Ring) ID() uint64 { return r.id }

// ParentID returns the parent ring's ID; the root ring is its own parent.
func (r *Ring) ParentID() uint64 { return r.parentID }

// InstanceCount reports how many instances are mounted on the ring.
func (r *Ring) InstanceCount() int { return r.instances.Len() }

// attach mounts an instance onto the ring.
func (r *Ring) attach(h *registry.Handle[Instance]) {
	r.instances.Insert(h.ID(), h)
}

// detach removes an instance from the ring.
func (r *Ring) detach(instanceID uint64) {
	r.instances.Remove(instanceID)
}

// ReleaseRing tears down a ring and every instance mounted on it. The root
// ring is never released.
func ReleaseRing(env *Env, h *registry.Handle[Ring]) {
	if h.ID() == id.Root {
		panic("proc: attempted to release the root ring")
	}
	var mounted []*registry.Handle[Instance]
	h.With(func(r *Ring) {
		r.instances.Range(func(_ uint64, ih *registry.Handle[Instance]) bool {
			mounted = append(mounted, ih)
			return true
		})
	})
	for _, ih := range mounted {
		ReleaseInstance(env, ih)
	}
	env.Reg.Remove(h.ID())
}
