package proc

import "fmt"

// ScheduleFailure classifies why a thread could not be scheduled. Callers
// treat every value as "try another thread", never as fatal.
type ScheduleFailure uint8

const (
	// ScheduleAlreadyRunning: the thread is running, on the carried core.
	ScheduleAlreadyRunning ScheduleFailure = iota + 1
	// SchedulePaused: the thread is paused on a different core.
	SchedulePaused
	// ScheduleStopped: the thread's run state is stopped.
	ScheduleStopped
	// ScheduleTerminated: the thread is terminated.
	ScheduleTerminated
	// ScheduleAwaitingResponse: the thread is parked on a system call whose
	// response has not arrived; it is structurally unschedulable.
	ScheduleAwaitingResponse
)

// ScheduleError is a failed TrySchedule. Core is meaningful for
// ScheduleAlreadyRunning and SchedulePaused.
type ScheduleError struct {
	Failure ScheduleFailure
	Core    uint32
}

// Error implements error.
func (e *ScheduleError) Error() string {
	switch e.Failure {
	case ScheduleAlreadyRunning:
		return fmt.Sprintf("thread already running on core %d", e.Core)
	case SchedulePaused:
		return fmt.Sprintf("thread paused on core %d", e.Core)
	case ScheduleStopped:
		return "thread stopped"
	case ScheduleTerminated:
		return "thread terminated"
	case ScheduleAwaitingResponse:
		return "thread awaiting system call response"
	default:
		return "unknown schedule failure"
	}
}

// PauseFailure classifies why a thread could not be paused.
type PauseFailure uint8

const (
	// PauseNotRunning: the thread holds no time slice.
	PauseNotRunning PauseFailure = iota + 1
	// PauseWrongCore: the thread is running on a different core.
	PauseWrongCore
	// PauseTerminated: the thread is terminated.
	PauseTerminated
)

// PauseError is a failed TryPause. Core is meaningful for PauseWrongCore.
type PauseError struct {
	Failure PauseFailure
	Core    uint32
}

// Error implements error.
func (e *PauseError) Error() string {
	switch e.Failure {
	case PauseNotRunning:
		return "thread not running"
	case PauseWrongCore:
		return fmt.Sprintf("thread running on core %d", e.Core)
	case PauseTerminated:
		return "thread terminated"
	default:
		return "unknown pause failure"
	}
}

// TokenMapError is a failed token reservation. A failed reservation leaves
// no page of the attempt behind.
type TokenMapError uint8

const (
	// TokenMapVirtNotAligned: the base address is not page-aligned.
	TokenMapVirtNotAligned TokenMapError = iota + 1
	// TokenMapVirtOutOfRange: some page falls outside the data segment.
	TokenMapVirtOutOfRange
	// TokenMapBadToken: the token is not owned by the instance.
	TokenMapBadToken
	// TokenMapConflict: some page overlaps an existing reservation.
	TokenMapConflict
)

// Error implements error.
func (e TokenMapError) Error() string {
	switch e {
	case TokenMapVirtNotAligned:
		return "token base not page-aligned"
	case TokenMapVirtOutOfRange:
		return "token range outside data segment"
	case TokenMapBadToken:
		return "token not owned by instance"
	case TokenMapConflict:
		return "token range conflicts with existing reservation"
	default:
		return "unknown token map error"
	}
}

// CommitError is a failed commit on the page-fault path. Surfaced as an
// interface error code, never a kernel panic.
type CommitError uint8

const (
	// CommitBadVirt: no reservation covers the faulting address.
	CommitBadVirt CommitError = iota + 1
	// CommitOutOfMemory: the frame source is exhausted.
	CommitOutOfMemory
	// CommitMapFailed: the page-table mapping failed.
	CommitMapFailed
)

// Error implements error.
func (e CommitError) Error() string {
	switch e {
	case CommitBadVirt:
		return "no token reservation at faulting address"
	case CommitOutOfMemory:
		return "out of memory committing token page"
	case CommitMapFailed:
		return "mapping committed token page failed"
	default:
		return "unknown commit error"
	}
}

// TransitionError is a failed run-state transition request.
type TransitionError uint8

const (
	// TransitionTerminated: a terminated thread cannot change state.
	TransitionTerminated TransitionError = iota + 1
	// TransitionRace: another thread's transition request is already
	// pending; the first request wins.
	TransitionRace
)

// Error implements error.
func (e TransitionError) Error() string {
	switch e {
	case TransitionTerminated:
		return "thread terminated"
	case TransitionRace:
		return "run-state transition already requested"
	default:
		return "unknown transition error"
	}
}
