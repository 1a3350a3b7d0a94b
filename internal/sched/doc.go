// Package sched implements the per-core round-robin scheduler over the
// kernel's shared thread list.
//
// The list is one lock-guarded intrusive structure shared by every core;
// each core keeps its own walk cursor into it. Selection is cooperative at
// the thread level: a core offers each candidate a time slice through
// TrySchedule and the thread itself decides whether it can take it, so the
// first-core-claims affinity rule and the parked-on-system-call rule live
// in the thread state machine, not here.
package sched
