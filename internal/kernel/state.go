package kernel

import (
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/nucleus-os/nucleus/internal/arch"
	"github.com/nucleus-os/nucleus/internal/iface"
	"github.com/nucleus-os/nucleus/internal/logging"
	"github.com/nucleus-os/nucleus/internal/monitoring"
	"github.com/nucleus-os/nucleus/internal/proc"
	"github.com/nucleus-os/nucleus/internal/registry"
	"github.com/nucleus-os/nucleus/internal/sched"
)

// State is the machine-wide kernel state shared by every core.
type State struct {
	env      *proc.Env
	root     *registry.Handle[proc.Ring]
	list     *sched.List
	dispatch *iface.Dispatcher
	log      *logging.Logger
	metrics  *monitoring.Metrics
	slice    uint32
}

// NewState boots the shared state: the root ring comes up under the
// reserved ID 0 and the dispatcher gets the standard built-ins.
func NewState(env *proc.Env, log *logging.Logger, metrics *monitoring.Metrics, slice uint32) *State {
	if slice == 0 {
		slice = sched.DefaultTimeSliceTicks
	}
	return &State{
		env:      env,
		root:     proc.NewRootRing(env),
		list:     sched.NewList(),
		dispatch: iface.NewDispatcher(env, log.Logger),
		log:      log,
		metrics:  metrics,
		slice:    slice,
	}
}

// Env returns the resource-model environment.
func (s *State) Env() *proc.Env { return s.env }

// RootRing returns the root ring's handle.
func (s *State) RootRing() *registry.Handle[proc.Ring] { return s.root }

// ThreadList returns the shared schedulable-thread list.
func (s *State) ThreadList() *sched.List { return s.list }

// Dispatcher returns the system-call dispatcher.
func (s *State) Dispatcher() *iface.Dispatcher { return s.dispatch }

// NewRing creates a child ring of parent.
func (s *State) NewRing(parent *registry.Handle[proc.Ring]) *registry.Handle[proc.Ring] {
	return proc.NewRing(s.env, parent)
}

// LoadModule registers a loaded executable image.
func (s *State) LoadModule(tag ulid.ULID, segments []proc.SegmentImage) (*registry.Handle[proc.Module], error) {
	h, err := proc.NewModule(s.env, tag, segments)
	if err != nil {
		return nil, err
	}
	s.log.Info("module loaded",
		zap.Uint64("module", h.ID()),
		zap.String("tag", tag.String()),
	)
	return h, nil
}

// SpawnInstance mounts module onto ring.
func (s *State) SpawnInstance(module *registry.Handle[proc.Module], ring *registry.Handle[proc.Ring]) (*registry.Handle[proc.Instance], error) {
	h, err := proc.NewInstance(s.env, module, ring)
	if err != nil {
		return nil, err
	}
	s.metrics.InstancesLive.Inc()
	s.log.Info("instance spawned",
		zap.Uint64("instance", h.ID()),
		zap.Uint64("module", module.ID()),
		zap.Uint64("ring", ring.ID()),
	)
	return h, nil
}

// SpawnThread creates a thread in instance entering at entry and submits it
// to the scheduler. The thread is unclaimed until the first core schedules
// it.
func (s *State) SpawnThread(instance *registry.Handle[proc.Instance], entry arch.VirtAddr) (*registry.Handle[proc.Thread], error) {
	h, err := proc.NewThread(s.env, instance, entry)
	if err != nil {
		return nil, err
	}
	s.list.Insert(h)
	s.metrics.ThreadsLive.Inc()
	s.log.Info("thread spawned",
		zap.Uint64("thread", h.ID()),
		zap.Uint64("instance", instance.ID()),
	)
	return h, nil
}

// RegisterRingInterface binds impl to ring, returning the interface ID user
// code addresses it by.
func (s *State) RegisterRingInterface(ring *registry.Handle[proc.Ring], impl iface.Interface) uint64 {
	return s.dispatch.RegisterRing(ring.ID(), impl)
}

// ReapThread removes a dead thread from the scheduler and reclaims it. The
// owning instance goes with it when this was its last thread and nothing
// else holds a reference.
func (s *State) ReapThread(th *registry.Handle[proc.Thread]) {
	var instance *registry.Handle[proc.Instance]
	th.With(func(t *proc.Thread) { instance = t.Instance() })
	instanceID := instance.ID()

	s.list.Remove(th.ID())
	proc.ReleaseThread(s.env, th)
	s.metrics.ThreadsLive.Dec()
	if _, ok := registry.Lookup[proc.Instance](s.env.Reg, instanceID); !ok {
		s.metrics.InstancesLive.Dec()
	}
	s.log.Info("thread reaped", zap.Uint64("thread", th.ID()))
}
