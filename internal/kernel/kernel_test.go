package kernel

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus-os/nucleus/internal/arch"
	"github.com/nucleus-os/nucleus/internal/arch/sim"
	"github.com/nucleus-os/nucleus/internal/event"
	"github.com/nucleus-os/nucleus/internal/iface"
	"github.com/nucleus-os/nucleus/internal/logging"
	"github.com/nucleus-os/nucleus/internal/monitoring"
	"github.com/nucleus-os/nucleus/internal/proc"
	"github.com/nucleus-os/nucleus/internal/registry"
	"github.com/nucleus-os/nucleus/internal/shared/id"
	"github.com/nucleus-os/nucleus/internal/token"
)

type machine struct {
	state  *State
	frames *sim.Frames
	core   *sim.Core
	k      *Kernel
	inst   *registry.Handle[proc.Instance]
}

func boot(t *testing.T, threads int) (*machine, []*registry.Handle[proc.Thread]) {
	t.Helper()
	frames := sim.NewFrames(256)
	env := &proc.Env{
		Arch:   sim.NewMachine(),
		Frames: frames,
		Reg:    registry.New(id.NewGenerator()),
	}
	state := NewState(env, logging.NewNop(), monitoring.NewMetrics(prometheus.NewRegistry()), 100)

	phys, ok := frames.Allocate()
	require.True(t, ok)
	module, err := state.LoadModule(id.NewTagger().Tag(), []proc.SegmentImage{
		{Base: 0x8000_0000, Frames: []arch.PhysAddr{phys}},
	})
	require.NoError(t, err)
	inst, err := state.SpawnInstance(module, state.RootRing())
	require.NoError(t, err)
	proc.ReleaseModule(env, module)

	ths := make([]*registry.Handle[proc.Thread], 0, threads)
	for i := 0; i < threads; i++ {
		th, err := state.SpawnThread(inst, 0x8000_0000)
		require.NoError(t, err)
		ths = append(ths, th)
	}

	core := sim.NewCore(0)
	return &machine{
		state:  state,
		frames: frames,
		core:   core,
		k:      New(state, core),
		inst:   inst,
	}, ths
}

func syscall(op event.Opcode, ifaceID, index, key, value uint64) event.SystemCall {
	return event.SystemCall{Request: event.SystemCallRequest{
		Opcode: op, InterfaceID: ifaceID, Index: index, Key: key, Value: value,
	}}
}

func TestBootWithoutThreadsIdles(t *testing.T) {
	m, _ := boot(t, 0)
	d := m.k.Boot()
	assert.True(t, d.Idle())
}

func TestImmediateSystemCallResumesCaller(t *testing.T) {
	m, ths := boot(t, 1)

	d := m.k.Boot()
	require.Same(t, ths[0], d.Thread)

	d = m.k.HandleEvent(syscall(event.OpSet, iface.BuiltinTokenAlloc, 0, iface.KeyPages, 2))
	require.Same(t, ths[0], d.Thread, "immediate calls resume the caller")
	require.NotNil(t, d.Resume)
	require.Equal(t, event.OK, d.Resume.SystemCall.Error)

	_, ok := registry.Lookup[token.Token](m.state.Env().Reg, d.Resume.SystemCall.Ret)
	assert.True(t, ok, "return value is the minted token's ID")
}

func TestDeferredSelfStopHandsCoreOver(t *testing.T) {
	m, ths := boot(t, 2)
	a, b := ths[0], ths[1]

	d := m.k.Boot()
	require.Same(t, a, d.Thread)

	// A stops itself: the transition defers, A parks, B gets the core.
	d = m.k.HandleEvent(syscall(event.OpSet, iface.BuiltinThreadControl, 0, iface.KeyStatus, uint64(proc.RunStateStopped)))
	require.Same(t, b, d.Thread)

	a.With(func(th *proc.Thread) {
		assert.Equal(t, proc.RunStateStopped, th.RunState(), "applied at the park boundary")
	})

	// B restarts A; the write is immediate since A is off-core.
	d = m.k.HandleEvent(syscall(event.OpSet, iface.BuiltinThreadControl, a.ID(), iface.KeyStatus, uint64(proc.RunStateRunning)))
	require.Same(t, b, d.Thread)
	require.NotNil(t, d.Resume)
	require.Equal(t, event.OK, d.Resume.SystemCall.Error)

	// On B's expiry, A comes back carrying its parked call's response.
	d = m.k.HandleEvent(event.Timer{})
	require.Same(t, a, d.Thread)
	require.NotNil(t, d.Resume)
	assert.Equal(t, event.OK, d.Resume.SystemCall.Error)
}

func TestPageFaultCommitsTokenPage(t *testing.T) {
	m, ths := boot(t, 1)

	d := m.k.Boot()
	require.Same(t, ths[0], d.Thread)

	d = m.k.HandleEvent(syscall(event.OpSet, iface.BuiltinTokenAlloc, 0, iface.KeyPages, 1))
	tokenID := d.Resume.SystemCall.Ret

	d = m.k.HandleEvent(syscall(event.OpSet, iface.BuiltinMemToken, tokenID, iface.KeyBase, 0x2000))
	require.Equal(t, event.OK, d.Resume.SystemCall.Error)

	before := m.frames.Allocated()
	d = m.k.HandleEvent(event.PageFault{Address: 0x2010, Access: event.AccessWrite})
	require.Same(t, ths[0], d.Thread, "committed fault resumes the thread")
	assert.Nil(t, d.Resume)
	assert.Equal(t, before+1, m.frames.Allocated())
}

func TestUnresolvableFaultKillsThread(t *testing.T) {
	m, ths := boot(t, 1)
	th := ths[0]
	threadID := th.ID()

	d := m.k.Boot()
	require.Same(t, th, d.Thread)

	d = m.k.HandleEvent(event.PageFault{Address: 0x0040_0000, Access: event.AccessWrite})
	assert.True(t, d.Idle(), "sole thread died; the core halts")

	_, ok := registry.Lookup[proc.Thread](m.state.Env().Reg, threadID)
	assert.False(t, ok, "thread reaped")
	assert.Equal(t, 0, m.state.ThreadList().Len())
}

func TestInvalidInstructionKillsThread(t *testing.T) {
	m, ths := boot(t, 2)
	a, b := ths[0], ths[1]

	d := m.k.Boot()
	require.Same(t, a, d.Thread)

	d = m.k.HandleEvent(event.InvalidInstruction{IP: 0x8000_0004})
	require.Same(t, b, d.Thread, "the survivor takes the core")

	a.With(func(th *proc.Thread) {
		assert.Equal(t, proc.RunStateTerminated, th.RunState())
	})
}

func TestInterruptResumesCurrentUntouched(t *testing.T) {
	m, ths := boot(t, 1)

	d := m.k.Boot()
	require.Same(t, ths[0], d.Thread)

	d = m.k.HandleEvent(event.Interrupt{Vector: 32})
	assert.Same(t, ths[0], d.Thread)
	assert.Nil(t, d.Resume)
}

func TestYieldRotates(t *testing.T) {
	m, ths := boot(t, 2)
	a, b := ths[0], ths[1]

	d := m.k.Boot()
	require.Same(t, a, d.Thread)

	d = m.k.HandleEvent(event.Yield{})
	assert.Same(t, b, d.Thread)
}

func TestInterfaceTerminatedThreadReaped(t *testing.T) {
	m, ths := boot(t, 2)
	a, b := ths[0], ths[1]
	bID := b.ID()

	d := m.k.Boot()
	require.Same(t, a, d.Thread)

	// A terminates B through the thread-control interface. B is off-core,
	// so the write applies immediately.
	d = m.k.HandleEvent(syscall(event.OpSet, iface.BuiltinThreadControl, bID, iface.KeyStatus, uint64(proc.RunStateTerminated)))
	require.Same(t, a, d.Thread)
	require.NotNil(t, d.Resume)
	require.Equal(t, event.OK, d.Resume.SystemCall.Error)

	// The next walk passes B's slot, unlinks it, and the kernel reaps it.
	d = m.k.HandleEvent(event.Timer{})
	require.Same(t, a, d.Thread, "a is the only live thread")
	_, ok := registry.Lookup[proc.Thread](m.state.Env().Reg, bID)
	assert.False(t, ok, "terminated thread reaped")
	assert.Equal(t, 1, m.state.ThreadList().Len())
}

func TestDeferredSelfTerminateReaps(t *testing.T) {
	m, ths := boot(t, 1)
	threadID := ths[0].ID()

	d := m.k.Boot()
	require.Same(t, ths[0], d.Thread)

	// Self-terminate defers, applies at the park boundary, and the pick
	// that follows drops the dead thread.
	d = m.k.HandleEvent(syscall(event.OpSet, iface.BuiltinThreadControl, 0, iface.KeyStatus, uint64(proc.RunStateTerminated)))
	assert.True(t, d.Idle())

	_, ok := registry.Lookup[proc.Thread](m.state.Env().Reg, threadID)
	assert.False(t, ok)
	assert.Equal(t, 0, m.state.ThreadList().Len())
}

func TestMigrationsCountedOncePerThread(t *testing.T) {
	m, ths := boot(t, 2)
	_ = ths

	d := m.k.Boot()
	require.False(t, d.Idle())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.state.metrics.ThreadMigrations))

	d = m.k.HandleEvent(event.Timer{})
	require.False(t, d.Idle())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.state.metrics.ThreadMigrations))

	// Both threads are claimed now; further switches are not migrations.
	m.k.HandleEvent(event.Timer{})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.state.metrics.ThreadMigrations))
}

func TestRunOnceDrivesCoreScript(t *testing.T) {
	m, ths := boot(t, 1)

	m.core.Push(syscall(event.OpSet, iface.BuiltinDebugOut, 0, iface.KeyWrite, 0x6F6B_0A))

	d := m.k.Boot()
	d = m.k.RunOnce(d)
	require.Same(t, ths[0], d.Thread)
	require.NotNil(t, d.Resume, "debug write answered immediately")
	assert.Equal(t, event.OK, d.Resume.SystemCall.Error)
	assert.Equal(t, 1, m.core.Switches())
}
