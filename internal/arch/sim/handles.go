package sim

import (
	"sync"

	"github.com/nucleus-os/nucleus/internal/arch"
)

// Machine is the simulated architecture: one address-space factory shared by
// every core.
type Machine struct {
	space *Space
}

// NewMachine returns a simulated architecture.
func NewMachine() *Machine {
	return &Machine{space: NewSpace()}
}

// AddressSpace returns the machine's address-space factory.
func (m *Machine) AddressSpace() arch.AddressSpace { return m.space }

// NewThreadHandle builds a simulated thread context.
func (m *Machine) NewThreadHandle(um arch.UserMapper, stackPtr, entry arch.VirtAddr) (arch.ThreadHandle, error) {
	return &ThreadContext{mapper: um.(*Mapper), stackPtr: stackPtr, entry: entry}, nil
}

// NewInstanceHandle builds a simulated instance context.
func (m *Machine) NewInstanceHandle(um arch.UserMapper) (arch.InstanceHandle, error) {
	return &InstanceContext{mapper: um.(*Mapper)}, nil
}

// ThreadContext is the simulated saved execution state of one thread.
type ThreadContext struct {
	mu         sync.Mutex
	mapper     *Mapper
	stackPtr   arch.VirtAddr
	entry      arch.VirtAddr
	resident   bool
	migrations int
}

// Migrate marks the context resident on the calling core. The simulation has
// no core-local page tables to rewrite, so this only records the move.
func (t *ThreadContext) Migrate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resident = true
	t.migrations++
}

// Mapper returns the thread's address space.
func (t *ThreadContext) Mapper() arch.UserMapper { return t.mapper }

// Entry returns the thread's entry point.
func (t *ThreadContext) Entry() arch.VirtAddr { return t.entry }

// StackPtr returns the thread's initial stack pointer.
func (t *ThreadContext) StackPtr() arch.VirtAddr { return t.stackPtr }

// Migrations reports how many times the context has been migrated.
func (t *ThreadContext) Migrations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.migrations
}

// InstanceContext is the simulated per-instance state.
type InstanceContext struct {
	mapper *Mapper
}

// Mapper returns the instance's address space.
func (i *InstanceContext) Mapper() arch.UserMapper { return i.mapper }
