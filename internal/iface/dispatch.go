package iface

import (
	"go.uber.org/zap"

	"github.com/nucleus-os/nucleus/internal/event"
	"github.com/nucleus-os/nucleus/internal/proc"
	"github.com/nucleus-os/nucleus/internal/registry"
)

// Dispatcher routes decoded system calls to interfaces.
//
// IDs carrying KernelBit resolve to built-in interfaces; all other IDs
// resolve through the identity registry to ring-scoped interfaces, and the
// calling thread's ring must match the binding exactly. Dispatch itself
// never fails: every malformed call comes back as a wire error code.
type Dispatcher struct {
	env      *proc.Env
	builtins map[uint64]Interface
	log      *zap.Logger
}

// NewDispatcher builds a dispatcher with the standard built-ins installed.
func NewDispatcher(env *proc.Env, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		env:      env,
		builtins: make(map[uint64]Interface),
		log:      log,
	}
	d.builtins[BuiltinThreadControl] = NewThreadControl(env)
	d.builtins[BuiltinMemToken] = NewMemToken(env)
	d.builtins[BuiltinTokenAlloc] = NewTokenAlloc(env)
	d.builtins[BuiltinDebugOut] = NewDebugOut(log)
	return d
}

// RegisterRing binds impl to ring and registers it, returning the interface
// ID user code addresses it by.
func (d *Dispatcher) RegisterRing(ringID uint64, impl Interface) uint64 {
	h := registry.Add(d.env.Reg, NewRingInterface(ringID, impl))
	return h.ID()
}

// Dispatch routes one decoded request on behalf of caller.
func (d *Dispatcher) Dispatch(caller *registry.Handle[proc.Thread], req event.SystemCallRequest) Response {
	target, ok := d.resolve(caller, req.InterfaceID)
	if !ok {
		d.log.Debug("system call to unresolvable interface",
			zap.Uint64("interface", req.InterfaceID),
			zap.Uint64("thread", caller.ID()),
		)
		return Fail(event.BadInterface)
	}

	switch req.Opcode {
	case event.OpGet:
		return target.Get(caller, req.Index, req.Key)
	case event.OpSet:
		return target.Set(caller, req.Index, req.Key, req.Value)
	default:
		d.log.Debug("system call with bad opcode",
			zap.Uint64("opcode", uint64(req.Opcode)),
			zap.Uint64("thread", caller.ID()),
		)
		return Fail(event.BadOpcode)
	}
}

// resolve maps an interface ID to its implementation, enforcing ring scope
// for registered interfaces.
func (d *Dispatcher) resolve(caller *registry.Handle[proc.Thread], ifaceID uint64) (Interface, bool) {
	if ifaceID&KernelBit != 0 {
		impl, ok := d.builtins[ifaceID]
		return impl, ok
	}
	h, ok := registry.Lookup[RingInterface](d.env.Reg, ifaceID)
	if !ok {
		return nil, false
	}
	var (
		ringID uint64
		impl   Interface
	)
	h.With(func(ri *RingInterface) {
		ringID = ri.RingID()
		impl = ri.Impl()
	})
	if ringID != callerRingID(caller) {
		// Out-of-ring lookups are indistinguishable from unknown IDs.
		return nil, false
	}
	return impl, true
}
