package sched

import (
	"github.com/nucleus-os/nucleus/internal/locking"
	"github.com/nucleus-os/nucleus/internal/proc"
	"github.com/nucleus-os/nucleus/internal/registry"
)

// node is one list slot. A removed node keeps its next pointer so a stale
// cursor parked on it can still rejoin the live list; the garbage collector
// reclaims it once every cursor has moved on.
type node struct {
	th      *registry.Handle[proc.Thread]
	prev    *node
	next    *node
	removed bool
}

// List is the shared schedulable-thread list. All access, including cursor
// walks by the per-core schedulers, happens under the list's ticket lock.
type List struct {
	lock locking.Ticket
	head *node
	tail *node
	n    int
}

// NewList returns an empty list.
func NewList() *List {
	return &List{}
}

// Insert appends a thread to the tail.
func (l *List) Insert(th *registry.Handle[proc.Thread]) {
	l.lock.Lock()
	defer l.lock.Unlock()
	n := &node{th: th, prev: l.tail}
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.n++
}

// Remove unlinks the thread with the given ID. It returns false if the
// thread is not on the list.
func (l *List) Remove(threadID uint64) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	for n := l.head; n != nil; n = n.next {
		if n.removed || n.th.ID() != threadID {
			continue
		}
		l.unlink(n)
		return true
	}
	return false
}

// unlink detaches n under the lock, preserving its next pointer.
func (l *List) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.removed = true
	l.n--
}

// Len reports the number of live entries.
func (l *List) Len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.n
}
