package event

// Opcode selects the system call operation.
type Opcode uint64

const (
	// OpGet reads a value from an interface at (index, key).
	OpGet Opcode = iota + 1
	// OpSet writes a value to an interface at (index, key).
	OpSet
)

// String returns the opcode mnemonic.
func (o Opcode) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	default:
		return "invalid"
	}
}

// Error is the system-call error code returned to user code.
//
// These are wire-level codes, not Go errors; a syscall never fails as far as
// the kernel's own control flow is concerned.
type Error uint64

const (
	// OK indicates success.
	OK Error = iota
	// BadOpcode indicates an unrecognized opcode.
	BadOpcode
	// BadInterface indicates the interface handle does not resolve, or the
	// calling thread's ring does not match the interface's bound ring.
	BadInterface
	// BadIndex indicates the index does not resolve to an entity.
	BadIndex
	// BadKey indicates the key is not recognized by the interface.
	BadKey
	// ReadOnly indicates a set was attempted on a read-only key.
	ReadOnly
	// WriteOnly indicates a get was attempted on a write-only key.
	WriteOnly
	// Canceled indicates the deferred call was canceled by the interface.
	Canceled
	// InterfaceError indicates an interface-specific error; the return value
	// carries the interface's own code.
	InterfaceError
)

// String returns the error mnemonic.
func (e Error) String() string {
	switch e {
	case OK:
		return "ok"
	case BadOpcode:
		return "bad_opcode"
	case BadInterface:
		return "bad_interface"
	case BadIndex:
		return "bad_index"
	case BadKey:
		return "bad_key"
	case ReadOnly:
		return "read_only"
	case WriteOnly:
		return "write_only"
	case Canceled:
		return "canceled"
	case InterfaceError:
		return "interface_error"
	default:
		return "unknown"
	}
}

// SystemCallRequest is the decoded form of a system-call trap.
//
// The interface handle either carries the kernel-reserved high bit, routing
// to a built-in interface, or resolves through the identity registry to a
// ring-scoped interface.
type SystemCallRequest struct {
	Opcode      Opcode
	InterfaceID uint64
	Index       uint64
	Key         uint64
	Value       uint64
}

// SystemCallResponse is the result loaded back into the calling thread.
type SystemCallResponse struct {
	Error Error
	Ret   uint64
}
