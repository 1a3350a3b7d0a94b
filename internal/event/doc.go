// Package event defines the architecture-independent trap vocabulary: the
// preemption events a core reports when control returns to the kernel, and
// the abstract system-call request/response model carried across that
// boundary.
//
// Nothing in this package allocates kernel resources; it is the leaf shared
// by the architecture layer, the process model, and interface dispatch.
package event
