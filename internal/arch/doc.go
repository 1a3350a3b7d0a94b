// Package arch declares the capability set a CPU architecture must supply to
// the kernel core: address-space mappers and segment views, thread and
// instance context handles, the per-core timer/context-switch handle, and the
// system-call trap accessor.
//
// The kernel never touches instruction-level state; everything
// architecture-specific lives behind these interfaces. Package arch/sim
// provides the in-memory implementation used by tests and the boot
// simulator.
package arch
