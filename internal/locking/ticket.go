// Package locking provides the kernel's lock primitives: a fair ticket-queued
// lock with a bounded-spin starvation escape, and an owner-tracked reentrant
// lock layered on top of it for paths where the same core may legitimately
// re-enter a lock it already holds.
package locking

import (
	"runtime"
	"sync/atomic"
)

// starvationSpins is the number of failed spin iterations a waiter tolerates
// before it force-advances the serving counter past a stale ticket. The value
// is deliberately large; the escape exists for liveness, not throughput.
const starvationSpins = 1 << 20

// Ticket is a fair, ticket-queued spin lock.
//
// Waiters take a ticket and spin until the serving counter reaches it,
// yielding to the runtime between checks. A waiter that spins past the
// starvation bound force-advances the serving counter by one, skipping a
// stale ticket whose holder never showed up. Mutual exclusion is still
// guaranteed by a separate held flag; only strict FIFO ordering is traded
// for liveness.
//
// The zero value is an unlocked lock.
type Ticket struct {
	next    atomic.Uint64
	serving atomic.Uint64
	held    atomic.Uint32
}

// Lock acquires the lock, blocking until it is held.
func (t *Ticket) Lock() {
	ticket := t.next.Add(1) - 1

	spins := 0
	for {
		s := t.serving.Load()
		if s == ticket {
			break
		}
		if s > ticket {
			// Our ticket was force-advanced past; fall through and contend
			// on the held flag directly.
			break
		}
		spins++
		if spins >= starvationSpins {
			t.serving.CompareAndSwap(s, s+1)
			spins = 0
		}
		runtime.Gosched()
	}

	for !t.held.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

// TryLock acquires the lock if it is free and the queue is empty.
func (t *Ticket) TryLock() bool {
	s := t.serving.Load()
	if t.next.Load() != s {
		return false
	}
	if !t.held.CompareAndSwap(0, 1) {
		return false
	}
	if !t.next.CompareAndSwap(s, s+1) {
		// Lost the ticket race; back out and let the queued waiter in.
		t.held.Store(0)
		return false
	}
	// Serve our own ticket immediately.
	t.serving.Add(1)
	return true
}

// Unlock releases the lock and admits the next ticket.
//
// Calling Unlock on an unheld lock is a kernel bug.
func (t *Ticket) Unlock() {
	if t.held.Load() == 0 {
		panic("locking: unlock of unheld ticket lock")
	}
	t.held.Store(0)
	s := t.serving.Load()
	if s < t.next.Load() {
		t.serving.CompareAndSwap(s, s+1)
	}
}
