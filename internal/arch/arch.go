package arch

import (
	"github.com/nucleus-os/nucleus/internal/event"
)

// PageSize is the only page granularity the kernel currently supports.
const PageSize = 4096

// VirtAddr is a user virtual address.
type VirtAddr uint64

// PhysAddr is a physical page-frame address.
type PhysAddr uint64

// PageAlign rounds v down to its page boundary.
func PageAlign(v VirtAddr) VirtAddr {
	return v &^ (PageSize - 1)
}

// FrameAllocator is the external page-frame source. The allocation policy is
// outside this core's scope.
type FrameAllocator interface {
	// Allocate returns a free frame, or false if physical memory is
	// exhausted.
	Allocate() (PhysAddr, bool)
	// Free returns a frame to the allocator.
	Free(PhysAddr)
}

// UserMapper is an opaque handle to one user address space. Mappers are
// produced and consumed only by the owning AddressSpace implementation,
// which marks its concrete type by embedding UserMapperBase.
type UserMapper interface {
	isUserMapper()
}

// UserMapperBase is embedded by UserMapper implementations to satisfy the
// interface marker.
type UserMapperBase struct{}

func (UserMapperBase) isUserMapper() {}

// Segment is a view over one region of a user address space.
type Segment interface {
	// Range returns the inclusive virtual address bounds of the segment.
	Range() (first, last VirtAddr)
	// Map establishes virt→phys. Fails with MapExists if virt is mapped.
	Map(m UserMapper, virt VirtAddr, phys PhysAddr) error
	// Unmap removes the mapping at virt, returning the frame it held.
	Unmap(m UserMapper, virt VirtAddr) (PhysAddr, error)
	// Remap replaces the mapping at virt, returning the previous frame if
	// one was present.
	Remap(m UserMapper, virt VirtAddr, phys PhysAddr) (PhysAddr, bool, error)
	// ShareInto makes src's mappings for this segment visible in dst by
	// reference. Used to overlay module read-only segments and shared data.
	ShareInto(dst, src UserMapper) error
	// UnmapAllAndReclaim removes every mapping this segment privately owns
	// in m and returns the frames to the allocator. Shared (by-reference)
	// mappings are left untouched.
	UnmapAllAndReclaim(m UserMapper, frames FrameAllocator)
}

// Contains reports whether virt lies within the segment's inclusive range.
func Contains(s Segment, virt VirtAddr) bool {
	first, last := s.Range()
	return virt >= first && virt <= last
}

// AddressSpace produces and destroys user address-space mappers and exposes
// the fixed segment layout.
type AddressSpace interface {
	// NewUserSpace allocates a fresh, empty user address space.
	NewUserSpace() (UserMapper, error)
	// DuplicateUserSpaceShallow creates a new mapper sharing src's mappings
	// by reference; private additions land only in the duplicate.
	DuplicateUserSpaceShallow(src UserMapper) (UserMapper, error)
	// FreeUserSpaceDeep tears down the mapper and reclaims every frame it
	// privately owns.
	FreeUserSpaceDeep(m UserMapper, frames FrameAllocator)
	// FreeUserSpaceHandle releases the mapper bookkeeping without touching
	// any frames.
	FreeUserSpaceHandle(m UserMapper)

	UserCode() Segment
	UserData() Segment
	UserThreadStack() Segment
}

// ThreadHandle is the architecture's saved execution context for one thread:
// register and stack state over a duplicate-mapped address space.
//
// Handles are never duplicated bytewise; ownership moves with the Go
// reference and the kernel tracks which core the context is resident on.
type ThreadHandle interface {
	// Migrate remaps the context's core-local segments so the thread
	// becomes runnable on the calling core. Synchronous and infallible.
	Migrate()
	// Mapper returns the thread's address-space handle.
	Mapper() UserMapper
}

// InstanceHandle is the architecture's per-instance context.
type InstanceHandle interface {
	Mapper() UserMapper
}

// CoreHandle is the kernel's line to one physical core.
type CoreHandle interface {
	// ID returns the core's identifier.
	ID() uint32
	// ScheduleTimer arms a one-off timer for the given ticks. The tick unit
	// is opaque to the kernel.
	ScheduleTimer(ticks uint32)
	// CancelTimer cancels any pending timer.
	CancelTimer()
	// RunContext switches to the given thread context until the next trap,
	// returning the decoded preemption event. A nil context halts the core
	// in a low-power wait. A non-nil resumption loads a system-call
	// response into the context before it runs.
	RunContext(th ThreadHandle, ticks uint32, res *event.Resumption) event.Preemption
	// Now returns the core's monotonic tick count.
	Now() uint64
}

// SystemCallHandle exposes the raw trap frame of an in-progress system call.
// Implementations decode the architectural registers; the kernel only sees
// the abstract opcode/key/value model.
type SystemCallHandle interface {
	Opcode() uint64
	TableID() uint64
	EntityID() uint64
	Key() uint64
	Value() uint64
	SetReturnValue(uint64)
	SetError(event.Error)
	// ReturnToCaller resumes the trapped context. It never returns.
	ReturnToCaller()
}

// DecodeSystemCall lifts a trap frame into the abstract request model.
func DecodeSystemCall(h SystemCallHandle) event.SystemCallRequest {
	return event.SystemCallRequest{
		Opcode:      event.Opcode(h.Opcode()),
		InterfaceID: h.TableID(),
		Index:       h.EntityID(),
		Key:         h.Key(),
		Value:       h.Value(),
	}
}

// Arch bundles the capability set for one CPU architecture.
type Arch interface {
	AddressSpace() AddressSpace
	// NewThreadHandle builds a thread context over m with the given initial
	// stack pointer and entry point.
	NewThreadHandle(m UserMapper, stackPtr, entry VirtAddr) (ThreadHandle, error)
	// NewInstanceHandle builds an instance context over m.
	NewInstanceHandle(m UserMapper) (InstanceHandle, error)
}
