package iface

import (
	"github.com/nucleus-os/nucleus/internal/event"
	"github.com/nucleus-os/nucleus/internal/inflight"
	"github.com/nucleus-os/nucleus/internal/proc"
	"github.com/nucleus-os/nucleus/internal/registry"
)

// Response is an interface's answer to one get or set.
//
// An immediate response carries the wire error and return value directly; a
// pending response carries the in-flight handle the calling thread parks on.
type Response struct {
	pending *inflight.Handle
	resp    event.SystemCallResponse
}

// Immediate answers the call right away.
func Immediate(code event.Error, ret uint64) Response {
	return Response{resp: event.SystemCallResponse{Error: code, Ret: ret}}
}

// OK answers the call right away with a success return value.
func OK(ret uint64) Response {
	return Immediate(event.OK, ret)
}

// Fail answers the call right away with an error code and a zero return.
func Fail(code event.Error) Response {
	return Immediate(code, 0)
}

// Pending defers the call; the thread parks on h until the interface
// resolves it.
func Pending(h *inflight.Handle) Response {
	return Response{pending: h}
}

// Deferred returns the in-flight handle of a pending response.
func (r Response) Deferred() (*inflight.Handle, bool) {
	return r.pending, r.pending != nil
}

// Resolved returns the immediate response. Calling it on a pending response
// is a kernel bug.
func (r Response) Resolved() event.SystemCallResponse {
	if r.pending != nil {
		panic("iface: resolved a pending response")
	}
	return r.resp
}

// Interface is one system-call interface: a typed get/set surface over
// entities addressed by index. Implementations never block; a call that
// cannot resolve synchronously returns a pending response.
type Interface interface {
	// TypeID identifies the interface's wire type.
	TypeID() uint64
	// Get reads (index, key).
	Get(caller *registry.Handle[proc.Thread], index, key uint64) Response
	// Set writes value to (index, key).
	Set(caller *registry.Handle[proc.Thread], index, key, value uint64) Response
}

var (
	_ Interface = (*ThreadControl)(nil)
	_ Interface = (*MemToken)(nil)
	_ Interface = (*TokenAlloc)(nil)
	_ Interface = (*DebugOut)(nil)
)

// RingInterface scopes an interface to one ring. Only threads whose
// instance is mounted on that exact ring may address it; parent and child
// rings are rejected identically to an unknown ID.
type RingInterface struct {
	ringID uint64
	impl   Interface
}

// NewRingInterface binds impl to the given ring.
func NewRingInterface(ringID uint64, impl Interface) *RingInterface {
	return &RingInterface{ringID: ringID, impl: impl}
}

// RingID returns the bound ring's ID.
func (ri *RingInterface) RingID() uint64 { return ri.ringID }

// Impl returns the wrapped interface.
func (ri *RingInterface) Impl() Interface { return ri.impl }

// callerRingID resolves the calling thread's ring ID.
func callerRingID(caller *registry.Handle[proc.Thread]) uint64 {
	var inst *registry.Handle[proc.Instance]
	caller.With(func(t *proc.Thread) { inst = t.Instance() })
	var ringID uint64
	inst.With(func(i *proc.Instance) { ringID = i.RingID() })
	return ringID
}

// callerInstance resolves the calling thread's instance handle.
func callerInstance(caller *registry.Handle[proc.Thread]) *registry.Handle[proc.Instance] {
	var inst *registry.Handle[proc.Instance]
	caller.With(func(t *proc.Thread) { inst = t.Instance() })
	return inst
}
