package iface

import (
	"errors"

	"github.com/nucleus-os/nucleus/internal/event"
	"github.com/nucleus-os/nucleus/internal/inflight"
	"github.com/nucleus-os/nucleus/internal/proc"
	"github.com/nucleus-os/nucleus/internal/registry"
)

// ThreadControl is the built-in thread-control interface.
//
// Index 0 addresses the calling thread; any other index is a thread
// resource ID, resolvable only within the caller's own instance. Reading
// "status" returns the run state; writing it requests a transition, which
// defers when the target currently holds a time slice.
type ThreadControl struct {
	env *proc.Env
}

// NewThreadControl builds the interface over env.
func NewThreadControl(env *proc.Env) *ThreadControl {
	return &ThreadControl{env: env}
}

// TypeID implements Interface.
func (tc *ThreadControl) TypeID() uint64 { return BuiltinThreadControl }

// Get implements Interface.
func (tc *ThreadControl) Get(caller *registry.Handle[proc.Thread], index, key uint64) Response {
	target, ok := tc.target(caller, index)
	if !ok {
		return Fail(event.BadIndex)
	}
	switch key {
	case KeyID:
		return OK(target.ID())
	case KeyStatus:
		var rs proc.RunState
		target.With(func(t *proc.Thread) { rs = t.RunState() })
		return OK(uint64(rs))
	case KeyType:
		return OK(BuiltinThreadControl)
	default:
		return Fail(event.BadKey)
	}
}

// Set implements Interface.
func (tc *ThreadControl) Set(caller *registry.Handle[proc.Thread], index, key, value uint64) Response {
	if key != KeyStatus {
		if key == KeyID || key == KeyType {
			return Fail(event.ReadOnly)
		}
		return Fail(event.BadKey)
	}
	target, ok := tc.target(caller, index)
	if !ok {
		return Fail(event.BadIndex)
	}
	rs, ok := proc.ParseRunState(value)
	if !ok {
		return Fail(event.InterfaceError)
	}

	var (
		deferred *inflight.Handle
		err      error
	)
	target.With(func(t *proc.Thread) { deferred, err = t.TransitionTo(rs) })
	switch {
	case errors.Is(err, proc.TransitionTerminated):
		return Immediate(event.InterfaceError, uint64(proc.TransitionTerminated))
	case errors.Is(err, proc.TransitionRace):
		return Immediate(event.InterfaceError, uint64(proc.TransitionRace))
	case err != nil:
		return Fail(event.InterfaceError)
	case deferred != nil:
		return Pending(deferred)
	default:
		return OK(0)
	}
}

// target resolves index to a thread handle within the caller's instance.
func (tc *ThreadControl) target(caller *registry.Handle[proc.Thread], index uint64) (*registry.Handle[proc.Thread], bool) {
	if index == 0 {
		return caller, true
	}
	inst := callerInstance(caller)
	var (
		target *registry.Handle[proc.Thread]
		ok     bool
	)
	inst.With(func(i *proc.Instance) { target, ok = i.Thread(index) })
	return target, ok
}
