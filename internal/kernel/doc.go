// Package kernel wires the resource model, dispatcher and scheduler into
// the per-core event loop.
//
// State is the machine-wide half: the identity registry, the root ring, the
// shared thread list and the system-call dispatcher. Kernel is the per-core
// half: it owns one CoreHandle and one scheduler cursor, turns each
// preemption event into a directive (run this thread, with this resumption,
// or halt), and never blocks inside an event handler.
package kernel
