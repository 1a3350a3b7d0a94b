package sim

import (
	"sync"

	"github.com/nucleus-os/nucleus/internal/arch"
	"github.com/nucleus-os/nucleus/internal/event"
)

// Core is a simulated CPU core. Instead of executing instructions it replays
// a script of preemption events, one per context switch, and records what
// the kernel asked of it.
type Core struct {
	id uint32

	mu         sync.Mutex
	now        uint64
	timerTicks uint32
	timerSet   bool
	script     []event.Preemption
	halts      int
	switches   int
	lastResume *event.Resumption
}

// NewCore returns a simulated core.
func NewCore(id uint32) *Core {
	return &Core{id: id}
}

// ID returns the core's identifier.
func (c *Core) ID() uint32 { return c.id }

// ScheduleTimer arms the one-off timer.
func (c *Core) ScheduleTimer(ticks uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timerTicks = ticks
	c.timerSet = true
}

// CancelTimer cancels any pending timer.
func (c *Core) CancelTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timerSet = false
}

// Push queues the preemption event the next RunContext call reports.
func (c *Core) Push(evs ...event.Preemption) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, evs...)
}

// RunContext replays the next scripted event. With an empty script the core
// reports a timer expiry, which keeps an idle kernel loop well-formed.
func (c *Core) RunContext(th arch.ThreadHandle, ticks uint32, res *event.Resumption) event.Preemption {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	c.lastResume = res
	if th == nil {
		c.halts++
	} else {
		c.switches++
	}
	if len(c.script) == 0 {
		return event.Timer{}
	}
	ev := c.script[0]
	c.script = c.script[1:]
	return ev
}

// Now returns the core's monotonic tick count.
func (c *Core) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// TimerArmed reports whether a timer is pending and for how many ticks.
func (c *Core) TimerArmed() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timerTicks, c.timerSet
}

// Halts reports how many times the core was put into a low-power wait.
func (c *Core) Halts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halts
}

// Switches reports how many user context switches ran.
func (c *Core) Switches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.switches
}

// LastResumption returns the resumption passed to the most recent
// RunContext call.
func (c *Core) LastResumption() *event.Resumption {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResume
}

// Frame is a recorded system-call trap frame, the simulated
// arch.SystemCallHandle.
type Frame struct {
	mu       sync.Mutex
	opcode   uint64
	tableID  uint64
	entityID uint64
	key      uint64
	value    uint64
	ret      uint64
	errCode  event.Error
	returned bool
}

// NewFrame builds a trap frame carrying the given request registers.
func NewFrame(opcode, tableID, entityID, key, value uint64) *Frame {
	return &Frame{opcode: opcode, tableID: tableID, entityID: entityID, key: key, value: value}
}

// Opcode returns the trapped opcode register.
func (f *Frame) Opcode() uint64 { return f.opcode }

// TableID returns the interface handle register.
func (f *Frame) TableID() uint64 { return f.tableID }

// EntityID returns the index register.
func (f *Frame) EntityID() uint64 { return f.entityID }

// Key returns the key register.
func (f *Frame) Key() uint64 { return f.key }

// Value returns the value register.
func (f *Frame) Value() uint64 { return f.value }

// SetReturnValue loads the return-value register.
func (f *Frame) SetReturnValue(v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ret = v
}

// SetError loads the error register.
func (f *Frame) SetError(e event.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errCode = e
}

// ReturnToCaller records the return. A hardware implementation would resume
// the trapped context and never come back; the simulation just marks the
// frame completed.
func (f *Frame) ReturnToCaller() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.returned = true
}

// Result reports the response registers and whether the frame was returned.
func (f *Frame) Result() (event.Error, uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errCode, f.ret, f.returned
}
