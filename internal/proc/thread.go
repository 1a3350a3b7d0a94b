package proc

import (
	"fmt"

	"github.com/nucleus-os/nucleus/internal/arch"
	"github.com/nucleus-os/nucleus/internal/event"
	"github.com/nucleus-os/nucleus/internal/inflight"
	"github.com/nucleus-os/nucleus/internal/registry"
)

// RunState is the externally visible lifecycle state of a thread. It is
// what the thread-control interface reads and writes; the finer-grained
// execution state (paused, on-core, parked on a system call) stays private
// to the scheduler.
type RunState uint64

const (
	// RunStateRunning means the thread is eligible for scheduling.
	RunStateRunning RunState = iota + 1
	// RunStateStopped means the thread is parked until explicitly resumed.
	RunStateStopped
	// RunStateTerminated means the thread is dead. Terminal.
	RunStateTerminated
)

// String returns the run-state mnemonic.
func (s RunState) String() string {
	switch s {
	case RunStateRunning:
		return "running"
	case RunStateStopped:
		return "stopped"
	case RunStateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ParseRunState decodes a run state from its wire value.
func ParseRunState(v uint64) (RunState, bool) {
	switch RunState(v) {
	case RunStateRunning, RunStateStopped, RunStateTerminated:
		return RunState(v), true
	default:
		return 0, false
	}
}

// threadState is the scheduler-facing execution state.
type threadState uint8

const (
	// stateUnallocated: no execution context is live. Only terminated
	// threads sit here.
	stateUnallocated threadState = iota
	// statePaused: off-core, runnable if the run state allows.
	statePaused
	// stateRunning: on a core, holding a time slice.
	stateRunning
	// statePausedSystemCall: off-core, parked until a deferred system call
	// resolves.
	statePausedSystemCall
)

// threadStackPages is the number of stack pages mapped below the guard.
const threadStackPages = 4

// pendingTransition is a run-state change requested while the thread held a
// time slice. It applies at the next pause boundary; the requester's handle
// resolves when it does.
type pendingTransition struct {
	target RunState
	result *inflight.InFlight
}

// Thread is one schedulable execution context of an instance.
//
// A thread is claimed by the first core that schedules it and stays affine
// to that core for its lifetime. All mutation happens under the owning
// registry handle's lock.
type Thread struct {
	id       uint64
	instance *registry.Handle[Instance]
	handle   arch.ThreadHandle
	mapper   arch.UserMapper

	state       threadState
	runState    RunState
	runningCore uint32

	claimed     bool
	claimedCore uint32

	// await is set while parked in statePausedSystemCall.
	await   *inflight.Handle
	pending *pendingTransition

	env *Env
}

// ScheduleAction tells the caller how to enter the thread. Resume is non-nil
// when the thread was parked on a system call and carries the response to
// load before it runs. Claimed is set when this schedule bound the thread to
// its core and migrated the context there.
type ScheduleAction struct {
	Resume  *event.Resumption
	Claimed bool
}

// NewThread spawns a thread in instance entering at entry. The thread gets a
// shallow duplicate of the instance's address space with a private stack: a
// run of mapped pages below an unmapped guard page at the top of the stack
// segment. The thread starts paused in the running run state.
func NewThread(env *Env, instance *registry.Handle[Instance], entry arch.VirtAddr) (*registry.Handle[Thread], error) {
	var instMapper arch.UserMapper
	instance.With(func(i *Instance) { instMapper = i.mapper })

	as := env.Arch.AddressSpace()
	dup, err := as.DuplicateUserSpaceShallow(instMapper)
	if err != nil {
		return nil, fmt.Errorf("duplicating instance space: %w", err)
	}

	stack := as.UserThreadStack()
	_, last := stack.Range()
	guard := arch.PageAlign(last)
	if guard+arch.PageSize-1 != last {
		panic("proc: stack segment does not end on a page boundary")
	}

	for i := 1; i <= threadStackPages; i++ {
		virt := guard - arch.VirtAddr(i)*arch.PageSize
		phys, ok := env.Frames.Allocate()
		if !ok {
			as.FreeUserSpaceDeep(dup, env.Frames)
			return nil, fmt.Errorf("allocating thread stack: %w", arch.MapOutOfMemory)
		}
		if err := stack.Map(dup, virt, phys); err != nil {
			env.Frames.Free(phys)
			as.FreeUserSpaceDeep(dup, env.Frames)
			return nil, fmt.Errorf("mapping thread stack at %#x: %w", virt, err)
		}
	}

	th, err := env.Arch.NewThreadHandle(dup, guard, entry)
	if err != nil {
		as.FreeUserSpaceDeep(dup, env.Frames)
		return nil, fmt.Errorf("creating thread context: %w", err)
	}

	t := &Thread{
		instance: instance,
		handle:   th,
		mapper:   dup,
		state:    statePaused,
		runState: RunStateRunning,
		env:      env,
	}
	h := registry.Add(env.Reg, t)
	h.With(func(tt *Thread) { tt.id = h.ID() })
	instance.With(func(i *Instance) { i.threads.Insert(h.ID(), h) })
	return h, nil
}

// ID returns the thread's resource ID.
func (t *Thread) ID() uint64 { return t.id }

// Instance returns the owning instance's handle.
func (t *Thread) Instance() *registry.Handle[Instance] { return t.instance }

// Handle returns the architecture execution context.
func (t *Thread) Handle() arch.ThreadHandle { return t.handle }

// RunState returns the externally visible lifecycle state.
func (t *Thread) RunState() RunState { return t.runState }

// ClaimedCore returns the core that owns the thread, if any core has
// scheduled it yet.
func (t *Thread) ClaimedCore() (uint32, bool) { return t.claimedCore, t.claimed }

// TrySchedule attempts to give the thread a time slice on the given core.
//
// The first successful schedule claims the thread for the core and migrates
// its context there; afterwards only that core may schedule it. A thread
// parked on a deferred system call becomes runnable only once the response
// has arrived, in which case the returned action carries the resumption to
// load. Every failure means "pick another thread".
func (t *Thread) TrySchedule(coreID uint32) (ScheduleAction, error) {
	switch t.runState {
	case RunStateTerminated:
		return ScheduleAction{}, &ScheduleError{Failure: ScheduleTerminated}
	case RunStateStopped:
		return ScheduleAction{}, &ScheduleError{Failure: ScheduleStopped}
	}

	if t.claimed && t.claimedCore != coreID {
		return ScheduleAction{}, &ScheduleError{Failure: SchedulePaused, Core: t.claimedCore}
	}

	switch t.state {
	case stateRunning:
		return ScheduleAction{}, &ScheduleError{Failure: ScheduleAlreadyRunning, Core: t.runningCore}
	case stateUnallocated:
		return ScheduleAction{}, &ScheduleError{Failure: ScheduleTerminated}
	case statePaused:
		claimed := t.claim(coreID)
		t.state = stateRunning
		t.runningCore = coreID
		return ScheduleAction{Claimed: claimed}, nil
	case statePausedSystemCall:
		resp, err := t.await.TryTakeResponse()
		switch {
		case err == nil && resp == nil:
			return ScheduleAction{}, &ScheduleError{Failure: ScheduleAwaitingResponse}
		case err == nil:
			t.await = nil
			claimed := t.claim(coreID)
			t.state = stateRunning
			t.runningCore = coreID
			return ScheduleAction{
				Resume:  &event.Resumption{SystemCall: *resp},
				Claimed: claimed,
			}, nil
		case err == inflight.ErrInterfaceCanceled:
			t.await = nil
			claimed := t.claim(coreID)
			t.state = stateRunning
			t.runningCore = coreID
			return ScheduleAction{
				Resume:  &event.Resumption{SystemCall: event.SystemCallResponse{Error: event.Canceled}},
				Claimed: claimed,
			}, nil
		default:
			panic(fmt.Sprintf("proc: corrupt in-flight cell on thread %d: %v", t.id, err))
		}
	default:
		panic("proc: invalid thread state")
	}
}

// claim binds the thread to its first core and migrates its context there.
// It reports whether this call performed the claim.
func (t *Thread) claim(coreID uint32) bool {
	if t.claimed {
		return false
	}
	t.claimed = true
	t.claimedCore = coreID
	t.handle.Migrate()
	return true
}

// TryPause takes the thread off-core. Only the core the thread is running on
// may pause it. A run-state transition requested while the thread held its
// slice applies here, and the requester's deferred call resolves.
func (t *Thread) TryPause(coreID uint32) error {
	if t.runState == RunStateTerminated {
		return &PauseError{Failure: PauseTerminated}
	}
	if t.state != stateRunning {
		return &PauseError{Failure: PauseNotRunning}
	}
	if t.runningCore != coreID {
		return &PauseError{Failure: PauseWrongCore, Core: t.runningCore}
	}
	t.state = statePaused
	t.applyPending()
	return nil
}

// AwaitSystemCallResponse parks the thread on a deferred system call. The
// thread must be running on the calling core; anything else is a kernel bug.
// A pending run-state transition applies at this pause boundary too.
func (t *Thread) AwaitSystemCallResponse(coreID uint32, h *inflight.Handle) {
	if t.state != stateRunning || t.runningCore != coreID {
		panic(fmt.Sprintf("proc: thread %d parked on system call while not running on core %d", t.id, coreID))
	}
	t.state = statePausedSystemCall
	t.await = h
	t.applyPending()
}

// TransitionTo requests a run-state change.
//
// A change on an off-core thread applies immediately and returns (nil, nil).
// A change on a running thread is deferred to its next pause boundary; the
// returned handle resolves when it applies. At most one transition may be
// pending at a time; the first request wins.
func (t *Thread) TransitionTo(target RunState) (*inflight.Handle, error) {
	if t.runState == RunStateTerminated {
		return nil, TransitionTerminated
	}
	if target == t.runState && t.pending == nil {
		return nil, nil
	}
	if t.state == stateRunning {
		if t.pending != nil {
			return nil, TransitionRace
		}
		fl, h := inflight.New()
		t.pending = &pendingTransition{target: target, result: fl}
		return h, nil
	}
	t.apply(target)
	return nil, nil
}

// applyPending applies a deferred run-state transition at a pause boundary
// and resolves the requester's call.
func (t *Thread) applyPending() {
	if t.pending == nil {
		return
	}
	p := t.pending
	t.pending = nil
	t.apply(p.target)
	p.result.Submit(event.SystemCallResponse{Error: event.OK})
}

// apply performs an immediate run-state change.
func (t *Thread) apply(target RunState) {
	if target == RunStateTerminated {
		t.Terminate()
		return
	}
	t.runState = target
}

// Terminate kills the thread. The execution context is retired, any parked
// system call is abandoned, and a still-pending transition request resolves
// as canceled. Terminate is idempotent; the resources the thread pins are
// reclaimed separately by ReleaseThread.
func (t *Thread) Terminate() {
	if t.runState == RunStateTerminated {
		return
	}
	if t.await != nil {
		t.await.Cancel()
		t.await = nil
	}
	if t.pending != nil {
		t.pending.result.Cancel()
		t.pending = nil
	}
	t.runState = RunStateTerminated
	t.state = stateUnallocated
}

// ReleaseThread tears down a terminated (or never-scheduled) thread: the
// private stack frames are reclaimed, the duplicate address-space handle is
// dropped, and the owning instance reaps itself if this was its last thread
// and no external reference remains. Releasing a thread that still holds a
// time slice is a kernel bug.
func ReleaseThread(env *Env, h *registry.Handle[Thread]) {
	var (
		instance *registry.Handle[Instance]
		mapper   arch.UserMapper
	)
	h.With(func(t *Thread) {
		if t.state == stateRunning {
			panic(fmt.Sprintf("proc: released thread %d while running on core %d", t.id, t.runningCore))
		}
		t.Terminate()
		instance = t.instance
		mapper = t.mapper
	})

	env.Arch.AddressSpace().FreeUserSpaceDeep(mapper, env.Frames)
	instance.With(func(i *Instance) { i.threads.Remove(h.ID()) })
	env.Reg.Remove(h.ID())
	reapInstanceIfIdle(env, instance)
}
