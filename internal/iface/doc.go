// Package iface implements the system-call interface model: the uniform
// get/set operation surface, FourCC-style key constants, ring-scoped
// interface registration, the dispatcher that routes decoded system calls,
// and the kernel's built-in interfaces (thread control, memory tokens,
// token allocation, debug output).
//
// Interfaces answer either immediately or by returning an in-flight handle;
// the kernel parks the calling thread on the handle and the response is
// loaded when the thread is next scheduled.
package iface
