// Package proc implements the kernel's resource hierarchy: Module (immutable
// loaded image) → Instance (mounted running copy with its own address-space
// overlay and token set) → Thread (one execution context), attached to a
// Ring (privilege/namespace domain).
//
// Ownership runs strictly downward: rings own instances, instances own
// threads and tokens. Upward links (instance to ring) are weak, an ID
// resolved through the identity registry on demand, so no reference cycle
// can form. A thread holds its instance handle strongly, since a thread can
// never outlive the address space it executes in.
package proc
