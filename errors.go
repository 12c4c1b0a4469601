package corosched

import (
	"errors"
	"fmt"
)

// ErrSchedulerReused is returned by Scheduler.Run when the scheduler has
// already been run; a Scheduler instance is single-use.
var ErrSchedulerReused = errors.New(`corosched: scheduler already run`)

// PanicError wraps a panic recovered from a coroutine body. It surfaces on
// the driving processor's thread, and ultimately as the error returned by
// Scheduler.Run.
type PanicError struct {
	// Value is the original panic value.
	Value any
	// Coroutine is the debug name of the coroutine that panicked, if known.
	Coroutine string
}

func (e *PanicError) Error() string {
	if e.Coroutine != `` {
		return fmt.Sprintf(`corosched: coroutine %q panicked: %v`, e.Coroutine, e.Value)
	}
	return fmt.Sprintf(`corosched: panic: %v`, e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type,
// enabling use with [errors.Is] and [errors.As] through the cause chain. If
// the panic value is not an error, returns nil.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
