// Package inflight implements the deferred system-call completion primitive.
//
// An interface that cannot answer a call immediately creates an
// InFlight/Handle pair over one shared cell. The interface side eventually
// submits exactly one response (or cancels); the caller side polls for it
// (or cancels). Each side may move the cell's state away from Pending
// exactly once, toward its own target; the losing side of a race observes
// the other's transition and backs off silently. No locks, no blocking.
package inflight

import (
	"errors"
	"sync/atomic"

	"github.com/nucleus-os/nucleus/internal/event"
)

// State is the cell's lifecycle position.
type State uint32

const (
	// Pending means no response has been submitted or canceled.
	Pending State = iota
	// Ready means the interface submitted a response not yet taken.
	Ready
	// CallerCanceled means the caller dropped its handle before a response.
	CallerCanceled
	// InterfaceCanceled means the interface abandoned the call.
	InterfaceCanceled
	// Finished means the caller already took the response.
	Finished
)

// String returns the state mnemonic.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case CallerCanceled:
		return "caller_canceled"
	case InterfaceCanceled:
		return "interface_canceled"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

var (
	// ErrInterfaceCanceled is returned when the interface abandoned the call.
	ErrInterfaceCanceled = errors.New("inflight: interface canceled the call")
	// ErrAlreadyTaken is returned on a second take of the same response.
	ErrAlreadyTaken = errors.New("inflight: response already taken")
	// ErrCallerCanceled is returned when polling a handle the caller side
	// already canceled. Reaching it indicates a kernel bug, since the caller
	// owns the handle it would be polling.
	ErrCallerCanceled = errors.New("inflight: caller canceled the call")
)

// cell is the shared heap state. The response slot is written exactly once,
// before the Ready store; the atomic store/load pair orders the write
// against the reader.
type cell struct {
	state atomic.Uint32
	resp  event.SystemCallResponse
}

// InFlight is the interface (producer) side.
type InFlight struct {
	c *cell
}

// Handle is the caller (consumer) side.
type Handle struct {
	c *cell
}

// New returns a linked interface/caller pair in the Pending state.
func New() (*InFlight, *Handle) {
	c := &cell{}
	return &InFlight{c: c}, &Handle{c: c}
}

// Canceled reports whether the caller has canceled the call. Purely an
// optimization hint for long-running interfaces; Submit after a caller
// cancel is harmless.
func (f *InFlight) Canceled() bool {
	return State(f.c.state.Load()) == CallerCanceled
}

// Submit publishes the response. Even if the caller has already canceled,
// the publish is innocuous: nothing will read it. Submitting twice is a
// kernel bug.
func (f *InFlight) Submit(resp event.SystemCallResponse) {
	f.c.resp = resp
	old := State(f.c.state.Swap(uint32(Ready)))
	if old == Ready || old == Finished {
		panic("inflight: response submitted twice")
	}
}

// Cancel abandons the call from the interface side. Only a Pending cell
// transitions; a raced or already-resolved cell is left untouched.
func (f *InFlight) Cancel() {
	f.c.state.CompareAndSwap(uint32(Pending), uint32(InterfaceCanceled))
}

// State returns the cell's current state.
func (h *Handle) State() State {
	return State(h.c.state.Load())
}

// TryTakeResponse polls for the response.
//
//   - (nil, nil): still pending.
//   - (resp, nil): the response, delivered exactly once.
//   - (nil, ErrInterfaceCanceled): the interface abandoned the call.
//   - (nil, ErrAlreadyTaken): the response was already consumed.
func (h *Handle) TryTakeResponse() (*event.SystemCallResponse, error) {
	switch State(h.c.state.Load()) {
	case Pending:
		return nil, nil
	case Ready:
		// Single consumer: only this handle can observe Ready, and it
		// retires the cell before returning.
		resp := h.c.resp
		h.c.state.Store(uint32(Finished))
		return &resp, nil
	case InterfaceCanceled:
		return nil, ErrInterfaceCanceled
	case Finished:
		return nil, ErrAlreadyTaken
	default:
		return nil, ErrCallerCanceled
	}
}

// Cancel abandons the call from the caller side. Only a Pending cell
// transitions; a response that raced in stays consumable but is simply
// never read.
func (h *Handle) Cancel() {
	h.c.state.CompareAndSwap(uint32(Pending), uint32(CallerCanceled))
}
