package sched

import (
	"errors"

	"github.com/nucleus-os/nucleus/internal/arch"
	"github.com/nucleus-os/nucleus/internal/proc"
	"github.com/nucleus-os/nucleus/internal/registry"
)

// DefaultTimeSliceTicks is the slice armed for each selected thread when the
// configuration does not override it.
const DefaultTimeSliceTicks uint32 = 1000

// Selection is a scheduling decision: the thread to enter and how to enter
// it (the action carries the system-call resumption when the thread was
// parked on one).
type Selection struct {
	Thread *registry.Handle[proc.Thread]
	Action proc.ScheduleAction
}

// Scheduler is one core's view of the shared thread list.
//
// The walk is forward-only from the core's cursor; reaching the tail parks
// the cursor at the idle position and grants at most one fresh lap from the
// head within the same decision, so a lone runnable thread is re-selected
// on consecutive events rather than starving behind an exhausted cursor.
type Scheduler struct {
	coreID  uint32
	core    arch.CoreHandle
	list    *List
	slice   uint32
	cursor  *node
	current *registry.Handle[proc.Thread]

	// defunct collects terminated threads the walk unlinked; the kernel
	// drains it outside the list lock and reclaims them.
	defunct []*registry.Handle[proc.Thread]
}

// New builds a scheduler for core over the shared list.
func New(core arch.CoreHandle, list *List, slice uint32) *Scheduler {
	if slice == 0 {
		slice = DefaultTimeSliceTicks
	}
	return &Scheduler{coreID: core.ID(), core: core, list: list, slice: slice}
}

// CoreID returns the owning core's ID.
func (s *Scheduler) CoreID() uint32 { return s.coreID }

// Current returns the thread holding this core's slice, if any.
func (s *Scheduler) Current() *registry.Handle[proc.Thread] { return s.current }

// EventIdle handles a core with nothing to do: the current thread, if any,
// is paused, and the next runnable thread is selected.
func (s *Scheduler) EventIdle() (Selection, bool) {
	return s.reschedule(true)
}

// EventTimerExpired handles a slice expiry. Identical to idle handling; the
// distinction is kept for the callers' accounting.
func (s *Scheduler) EventTimerExpired() (Selection, bool) {
	return s.reschedule(true)
}

// PickNext selects the next runnable thread without touching the previous
// one. The caller has already taken the current thread off-core (parked on
// a system call, or terminated).
func (s *Scheduler) PickNext() (Selection, bool) {
	return s.reschedule(false)
}

func (s *Scheduler) reschedule(pauseCurrent bool) (Selection, bool) {
	s.list.lock.Lock()
	defer s.list.lock.Unlock()

	if s.current != nil && pauseCurrent {
		s.current.With(func(t *proc.Thread) {
			// Failure means the thread already left the core on its own
			// (terminated under us); nothing to do.
			_ = t.TryPause(s.coreID)
		})
	}
	s.current = nil

	sel, ok := s.pick()
	if ok {
		s.current = sel.Thread
	}
	// The slice timer re-arms on every decision, idle ones included: the
	// next expiry is an idle core's only chance to notice work that arrived
	// in the meantime.
	s.core.ScheduleTimer(s.slice)
	return sel, ok
}

// TakeDefunct returns the terminated threads unlinked by walks since the
// last call and resets the collection.
func (s *Scheduler) TakeDefunct() []*registry.Handle[proc.Thread] {
	d := s.defunct
	s.defunct = nil
	return d
}

// pick walks the list from the cursor. Caller holds the list lock.
func (s *Scheduler) pick() (Selection, bool) {
	n := s.list.head
	freshLap := false
	if s.cursor != nil {
		n = s.cursor.next
		freshLap = true
	}

	for {
		for ; n != nil; n = n.next {
			if n.removed {
				continue
			}
			var (
				act proc.ScheduleAction
				err error
			)
			n.th.With(func(t *proc.Thread) { act, err = t.TrySchedule(s.coreID) })
			if err == nil {
				s.cursor = n
				return Selection{Thread: n.th, Action: act}, true
			}
			// Terminated threads leave the list here; unlink preserves the
			// node's next pointer, so the walk continues past it.
			var serr *proc.ScheduleError
			if errors.As(err, &serr) && serr.Failure == proc.ScheduleTerminated {
				s.defunct = append(s.defunct, n.th)
				s.list.unlink(n)
			}
		}
		s.cursor = nil
		if !freshLap {
			return Selection{}, false
		}
		freshLap = false
		n = s.list.head
	}
}
