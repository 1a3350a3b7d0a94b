package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus-os/nucleus/internal/event"
	"github.com/nucleus-os/nucleus/internal/inflight"
	"github.com/nucleus-os/nucleus/internal/registry"
)

func spawnThread(t *testing.T, env *Env, inst *registry.Handle[Instance]) *registry.Handle[Thread] {
	t.Helper()
	th, err := NewThread(env, inst, 0x8000_0000)
	require.NoError(t, err)
	return th
}

func scheduleOK(t *testing.T, th *registry.Handle[Thread], core uint32) ScheduleAction {
	t.Helper()
	var (
		act ScheduleAction
		err error
	)
	th.With(func(tt *Thread) { act, err = tt.TrySchedule(core) })
	require.NoError(t, err)
	return act
}

func scheduleFail(t *testing.T, th *registry.Handle[Thread], core uint32) *ScheduleError {
	t.Helper()
	var err error
	th.With(func(tt *Thread) { _, err = tt.TrySchedule(core) })
	require.Error(t, err)
	var serr *ScheduleError
	require.ErrorAs(t, err, &serr)
	return serr
}

func TestNewThreadStartsPausedAndRunnable(t *testing.T) {
	env, _ := testEnv(64)
	inst, _ := testInstance(t, env)
	th := spawnThread(t, env, inst)

	th.With(func(tt *Thread) {
		assert.Equal(t, RunStateRunning, tt.RunState())
		_, claimed := tt.ClaimedCore()
		assert.False(t, claimed)
	})
}

func TestFirstScheduleClaimsCore(t *testing.T) {
	env, _ := testEnv(64)
	inst, _ := testInstance(t, env)
	th := spawnThread(t, env, inst)

	act := scheduleOK(t, th, 2)
	assert.True(t, act.Claimed, "first schedule performs the claim")

	th.With(func(tt *Thread) {
		core, claimed := tt.ClaimedCore()
		assert.True(t, claimed)
		assert.Equal(t, uint32(2), core)
	})

	// Running threads reject a second slice on the same core.
	serr := scheduleFail(t, th, 2)
	assert.Equal(t, ScheduleAlreadyRunning, serr.Failure)
	assert.Equal(t, uint32(2), serr.Core)

	// A foreign core never schedules a claimed thread.
	serr = scheduleFail(t, th, 5)
	assert.Equal(t, SchedulePaused, serr.Failure)
	assert.Equal(t, uint32(2), serr.Core)
}

func TestClaimSticksAfterPause(t *testing.T) {
	env, _ := testEnv(64)
	inst, _ := testInstance(t, env)
	th := spawnThread(t, env, inst)

	scheduleOK(t, th, 1)
	th.With(func(tt *Thread) {
		require.NoError(t, tt.TryPause(1))
	})

	serr := scheduleFail(t, th, 3)
	assert.Equal(t, SchedulePaused, serr.Failure)
	assert.Equal(t, uint32(1), serr.Core)

	act := scheduleOK(t, th, 1)
	assert.False(t, act.Claimed, "reschedule on the owning core is not a claim")
}

func TestPauseErrors(t *testing.T) {
	env, _ := testEnv(64)
	inst, _ := testInstance(t, env)
	th := spawnThread(t, env, inst)

	th.With(func(tt *Thread) {
		var perr *PauseError
		err := tt.TryPause(0)
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, PauseNotRunning, perr.Failure)
	})

	scheduleOK(t, th, 0)
	th.With(func(tt *Thread) {
		var perr *PauseError
		err := tt.TryPause(4)
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, PauseWrongCore, perr.Failure)
		assert.Equal(t, uint32(0), perr.Core)

		require.NoError(t, tt.TryPause(0))
	})
}

func TestImmediateTransitionWhileOffCore(t *testing.T) {
	env, _ := testEnv(64)
	inst, _ := testInstance(t, env)
	th := spawnThread(t, env, inst)

	th.With(func(tt *Thread) {
		h, err := tt.TransitionTo(RunStateStopped)
		require.NoError(t, err)
		assert.Nil(t, h, "off-core transitions apply immediately")
		assert.Equal(t, RunStateStopped, tt.RunState())
	})

	serr := scheduleFail(t, th, 0)
	assert.Equal(t, ScheduleStopped, serr.Failure)

	th.With(func(tt *Thread) {
		_, err := tt.TransitionTo(RunStateRunning)
		require.NoError(t, err)
	})
	scheduleOK(t, th, 0)
}

func TestDeferredTransitionAppliesAtPause(t *testing.T) {
	env, _ := testEnv(64)
	inst, _ := testInstance(t, env)
	th := spawnThread(t, env, inst)
	scheduleOK(t, th, 0)

	var h *inflight.Handle
	th.With(func(tt *Thread) {
		var err error
		h, err = tt.TransitionTo(RunStateStopped)
		require.NoError(t, err)
		require.NotNil(t, h, "on-core transitions defer")

		// Second request loses the race.
		_, err = tt.TransitionTo(RunStateRunning)
		assert.ErrorIs(t, err, TransitionRace)

		assert.Equal(t, RunStateRunning, tt.RunState(), "not applied yet")
	})

	resp, err := h.TryTakeResponse()
	require.NoError(t, err)
	assert.Nil(t, resp, "unresolved until the pause boundary")

	th.With(func(tt *Thread) {
		require.NoError(t, tt.TryPause(0))
		assert.Equal(t, RunStateStopped, tt.RunState())
	})

	resp, err = h.TryTakeResponse()
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, event.OK, resp.Error)
}

func TestAwaitSystemCallResponse(t *testing.T) {
	env, _ := testEnv(64)
	inst, _ := testInstance(t, env)
	th := spawnThread(t, env, inst)
	scheduleOK(t, th, 0)

	fl, h := inflight.New()
	th.With(func(tt *Thread) { tt.AwaitSystemCallResponse(0, h) })

	serr := scheduleFail(t, th, 0)
	assert.Equal(t, ScheduleAwaitingResponse, serr.Failure)

	fl.Submit(event.SystemCallResponse{Error: event.OK, Ret: 123})

	act := scheduleOK(t, th, 0)
	require.NotNil(t, act.Resume)
	assert.Equal(t, uint64(123), act.Resume.SystemCall.Ret)
}

func TestInterfaceCancelWakesWithCanceled(t *testing.T) {
	env, _ := testEnv(64)
	inst, _ := testInstance(t, env)
	th := spawnThread(t, env, inst)
	scheduleOK(t, th, 0)

	fl, h := inflight.New()
	th.With(func(tt *Thread) { tt.AwaitSystemCallResponse(0, h) })
	fl.Cancel()

	act := scheduleOK(t, th, 0)
	require.NotNil(t, act.Resume)
	assert.Equal(t, event.Canceled, act.Resume.SystemCall.Error)
}

func TestAwaitWhileNotRunningPanics(t *testing.T) {
	env, _ := testEnv(64)
	inst, _ := testInstance(t, env)
	th := spawnThread(t, env, inst)

	_, h := inflight.New()
	th.With(func(tt *Thread) {
		assert.Panics(t, func() { tt.AwaitSystemCallResponse(0, h) })
	})
}

func TestTerminate(t *testing.T) {
	env, _ := testEnv(64)
	inst, _ := testInstance(t, env)
	th := spawnThread(t, env, inst)
	scheduleOK(t, th, 0)

	fl, h := inflight.New()
	th.With(func(tt *Thread) {
		tt.AwaitSystemCallResponse(0, h)
		tt.Terminate()
		assert.Equal(t, RunStateTerminated, tt.RunState())

		// Idempotent.
		tt.Terminate()

		_, err := tt.TransitionTo(RunStateRunning)
		assert.ErrorIs(t, err, TransitionTerminated)
	})
	assert.True(t, fl.Canceled(), "parked call abandoned on termination")

	serr := scheduleFail(t, th, 0)
	assert.Equal(t, ScheduleTerminated, serr.Failure)
}

func TestReleaseThreadReclaimsStackAndReapsInstance(t *testing.T) {
	env, frames := testEnv(64)
	inst, _ := testInstance(t, env)
	instID := inst.ID()
	before := frames.Allocated()

	th := spawnThread(t, env, inst)
	assert.Equal(t, before+threadStackPages, frames.Allocated())

	// Dropping the creation reference first: the live thread keeps the
	// instance alive.
	ReleaseInstance(env, inst)
	_, ok := registry.Lookup[Instance](env.Reg, instID)
	require.True(t, ok)

	th.With(func(tt *Thread) { tt.Terminate() })
	ReleaseThread(env, th)

	_, ok = registry.Lookup[Instance](env.Reg, instID)
	assert.False(t, ok, "last thread's release reaps the instance")
	assert.Equal(t, 0, frames.Allocated(), "everything reclaimed")
}

func TestReleaseRunningThreadPanics(t *testing.T) {
	env, _ := testEnv(64)
	inst, _ := testInstance(t, env)
	th := spawnThread(t, env, inst)
	scheduleOK(t, th, 0)

	assert.Panics(t, func() { ReleaseThread(env, th) })
}

func TestRunStateParsing(t *testing.T) {
	for _, want := range []RunState{RunStateRunning, RunStateStopped, RunStateTerminated} {
		got, ok := ParseRunState(uint64(want))
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := ParseRunState(0)
	assert.False(t, ok)
	_, ok = ParseRunState(99)
	assert.False(t, ok)
}
