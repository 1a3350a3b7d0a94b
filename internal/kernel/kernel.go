package kernel

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/nucleus-os/nucleus/internal/arch"
	"github.com/nucleus-os/nucleus/internal/event"
	"github.com/nucleus-os/nucleus/internal/logging"
	"github.com/nucleus-os/nucleus/internal/monitoring"
	"github.com/nucleus-os/nucleus/internal/proc"
	"github.com/nucleus-os/nucleus/internal/registry"
	"github.com/nucleus-os/nucleus/internal/sched"
)

// Directive tells the core driver what to run next. A nil Thread halts the
// core until the next event; a non-nil Resume loads a system-call response
// into the thread before it runs.
type Directive struct {
	Thread *registry.Handle[proc.Thread]
	Resume *event.Resumption
}

// Idle reports whether the directive halts the core.
func (d Directive) Idle() bool { return d.Thread == nil }

// Kernel is the per-core kernel instance.
type Kernel struct {
	state     *State
	core      arch.CoreHandle
	sched     *sched.Scheduler
	log       *logging.Logger
	coreLabel string
}

// New builds the kernel instance for one core.
func New(state *State, core arch.CoreHandle) *Kernel {
	return &Kernel{
		state:     state,
		core:      core,
		sched:     sched.New(core, state.list, state.slice),
		log:       state.log.Core(core.ID()),
		coreLabel: strconv.FormatUint(uint64(core.ID()), 10),
	}
}

// Core returns the underlying core handle.
func (k *Kernel) Core() arch.CoreHandle { return k.core }

// Scheduler returns the core's scheduler.
func (k *Kernel) Scheduler() *sched.Scheduler { return k.sched }

// Boot makes the core's first scheduling decision.
func (k *Kernel) Boot() Directive {
	return k.decision(k.sched.EventIdle())
}

// HandleEvent turns one preemption event into the next directive. Handlers
// run to completion and never block; anything that cannot resolve here
// parks the thread and picks another.
func (k *Kernel) HandleEvent(ev event.Preemption) Directive {
	switch ev := ev.(type) {
	case event.Timer:
		k.state.metrics.TimerExpiries.WithLabelValues(k.coreLabel).Inc()
		return k.decision(k.sched.EventTimerExpired())

	case event.Yield:
		return k.decision(k.sched.EventIdle())

	case event.SystemCall:
		return k.handleSystemCall(ev.Request)

	case event.PageFault:
		return k.handlePageFault(ev)

	case event.InvalidInstruction:
		cur := k.sched.Current()
		if cur == nil {
			return k.decision(k.sched.EventIdle())
		}
		k.log.Warn("thread executed invalid instruction",
			zap.Uint64("thread", cur.ID()),
			zap.Uint64("ip", ev.IP),
		)
		return k.killCurrent(cur)

	case event.Interrupt:
		// Unrelated to the running context; resume it untouched.
		if cur := k.sched.Current(); cur != nil {
			return Directive{Thread: cur}
		}
		return k.decision(k.sched.EventIdle())

	default:
		k.log.Error("unhandled preemption event")
		return k.decision(k.sched.EventIdle())
	}
}

// RunOnce executes one directive on the core and handles the resulting
// event. The embedder loops over it.
func (k *Kernel) RunOnce(d Directive) Directive {
	var th arch.ThreadHandle
	if d.Thread != nil {
		d.Thread.With(func(t *proc.Thread) { th = t.Handle() })
	}
	ev := k.core.RunContext(th, k.state.slice, d.Resume)
	return k.HandleEvent(ev)
}

func (k *Kernel) handleSystemCall(req event.SystemCallRequest) Directive {
	cur := k.sched.Current()
	if cur == nil {
		// A trap with no running thread is a spurious wakeup.
		return k.decision(k.sched.EventIdle())
	}

	resp := k.state.dispatch.Dispatch(cur, req)
	if h, ok := resp.Deferred(); ok {
		k.state.metrics.SystemCalls.WithLabelValues(monitoring.ResolutionDeferred).Inc()
		cur.With(func(t *proc.Thread) {
			t.AwaitSystemCallResponse(k.core.ID(), h)
		})
		return k.decision(k.sched.PickNext())
	}

	k.state.metrics.SystemCalls.WithLabelValues(monitoring.ResolutionImmediate).Inc()
	r := resp.Resolved()
	return Directive{Thread: cur, Resume: &event.Resumption{SystemCall: r}}
}

func (k *Kernel) handlePageFault(ev event.PageFault) Directive {
	cur := k.sched.Current()
	if cur == nil {
		return k.decision(k.sched.EventIdle())
	}

	var inst *registry.Handle[proc.Instance]
	cur.With(func(t *proc.Thread) { inst = t.Instance() })

	var err error
	inst.With(func(i *proc.Instance) {
		_, err = i.TryCommitTokenAt(arch.VirtAddr(ev.Address))
	})
	if err == nil {
		k.state.metrics.PageFaults.WithLabelValues(monitoring.FaultCommitted).Inc()
		k.state.metrics.TokenCommits.Inc()
		return Directive{Thread: cur}
	}

	k.state.metrics.PageFaults.WithLabelValues(monitoring.FaultFatal).Inc()
	k.log.Warn("unresolvable page fault",
		zap.Uint64("thread", cur.ID()),
		zap.Uint64("address", ev.Address),
		zap.String("access", ev.Access.String()),
		zap.Error(err),
	)
	return k.killCurrent(cur)
}

// killCurrent terminates the running thread and picks the next. The walk
// inside the pick unlinks the dead thread; the decision reaps it.
func (k *Kernel) killCurrent(cur *registry.Handle[proc.Thread]) Directive {
	cur.With(func(t *proc.Thread) { t.Terminate() })
	return k.decision(k.sched.PickNext())
}

// decision converts a scheduling outcome into a directive, reclaiming any
// terminated threads the walk dropped from the list on the way.
func (k *Kernel) decision(sel sched.Selection, ok bool) Directive {
	for _, th := range k.sched.TakeDefunct() {
		k.state.ReapThread(th)
	}
	if !ok {
		k.state.metrics.CoreIdles.WithLabelValues(k.coreLabel).Inc()
		return Directive{}
	}
	k.state.metrics.ThreadsScheduled.WithLabelValues(k.coreLabel).Inc()
	if sel.Action.Claimed {
		k.state.metrics.ThreadMigrations.Inc()
	}
	return Directive{Thread: sel.Thread, Resume: sel.Action.Resume}
}
