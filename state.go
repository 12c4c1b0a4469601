package corosched

import (
	"sync/atomic"
)

// State represents the lifecycle state of a coroutine.
//
// State Machine:
//
//	StateCreated → StateRunning          [first resume]
//	StateRunning → StateSuspended        [Sched]
//	StateRunning → StateParked           [ParkWith]
//	StateRunning → StateFinished         [body return / panic]
//	StateSuspended → StateRunning        [resume]
//	StateParked → StateRunning           [resume after external wake]
//	StateCreated | StateSuspended | StateParked → StateFinished [released]
//	StateFinished → (terminal)
//
// Observing StateRunning from anywhere other than the driving processor's
// own thread is a bug at this layer; the value exists so that an impossible
// yield can be detected and reported.
type State uint32

const (
	// StateCreated indicates the coroutine has been spawned but never resumed.
	StateCreated State = iota
	// StateSuspended indicates the coroutine voluntarily yielded via Sched
	// and is runnable.
	StateSuspended
	// StateRunning indicates the coroutine currently holds its processor's
	// thread of execution.
	StateRunning
	// StateParked indicates the coroutine yielded via ParkWith and is owned
	// by a park continuation until externally woken.
	StateParked
	// StateFinished indicates the coroutine's body returned, panicked, or the
	// coroutine was released. Terminal.
	StateFinished
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateSuspended:
		return "Suspended"
	case StateRunning:
		return "Running"
	case StateParked:
		return "Parked"
	case StateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// coroState is the atomic storage for a coroutine's State.
//
// Mutation follows the control-handoff discipline (exactly one of the driver
// or the coroutine executes at a time), so plain stores suffice; atomics make
// cross-thread observation (debuggers, tests) well defined.
type coroState struct {
	v atomic.Uint32
}

// Load returns the current state atomically.
func (s *coroState) Load() State {
	return State(s.v.Load())
}

// Store atomically stores a new state.
func (s *coroState) Store(state State) {
	s.v.Store(uint32(state))
}
