package event

// Preemption is the reason a core handed control back to the kernel.
//
// Exactly one concrete type below is produced per context switch. The kernel
// runs its handler for the event to completion before returning to a user
// thread or idling; there is no nested kernel preemption.
type Preemption interface {
	preemption()
}

// Timer indicates the running context's time slice expired.
type Timer struct{}

// SystemCall indicates the running context invoked a system call.
type SystemCall struct {
	Request SystemCallRequest
}

// PageFaultAccess is the access kind that faulted. When multiple kinds are
// involved, execute wins over write, which wins over read.
type PageFaultAccess uint8

const (
	// AccessRead is a faulting read.
	AccessRead PageFaultAccess = iota
	// AccessWrite is a faulting write.
	AccessWrite
	// AccessExecute is a faulting instruction fetch.
	AccessExecute
)

// String returns the access mnemonic.
func (a PageFaultAccess) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessExecute:
		return "execute"
	default:
		return "unknown"
	}
}

// PageFault indicates the running context faulted on a memory access.
type PageFault struct {
	// Address is the accessed address. It is not page-aligned; it comes
	// straight from user code.
	Address uint64
	// IP is the faulting instruction address, zero if the architecture does
	// not report one.
	IP uint64
	// Access is the access kind.
	Access PageFaultAccess
}

// Yield indicates the running context voluntarily gave up its slice.
type Yield struct{}

// InvalidInstruction indicates the running context executed an illegal
// instruction.
type InvalidInstruction struct {
	IP uint64
}

// Interrupt indicates an asynchronous interrupt unrelated to the running
// context.
type Interrupt struct {
	Vector uint64
}

func (Timer) preemption()              {}
func (SystemCall) preemption()         {}
func (PageFault) preemption()          {}
func (Yield) preemption()              {}
func (InvalidInstruction) preemption() {}
func (Interrupt) preemption()          {}

// Resumption parameterizes how a context is resumed. A nil *Resumption means
// a plain resume; otherwise the system-call response is loaded into the
// context before it runs.
type Resumption struct {
	SystemCall SystemCallResponse
}
