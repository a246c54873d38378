package donsched

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is matched by every [*InvalidStateError].
	ErrInvalidState = errors.New("invalid thread state")

	// ErrInvariantViolation is matched by every [*InvariantViolationError].
	ErrInvariantViolation = errors.New("internal invariant violation")

	// ErrUnknownQueue is returned when a [QueueID] was not created by the
	// scheduler it is passed to.
	ErrUnknownQueue = errors.New("unknown queue")
)

// InvalidStateError reports an operation whose precondition on a thread's
// state does not hold, such as waiting on two queues at once. Nothing is
// mutated when it is returned.
type InvalidStateError struct {
	Op     string
	Thread ThreadID
	Queue  QueueID
	State  ThreadState
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: thread %d on queue %d: %s while %s", e.Op, e.Thread, e.Queue, ErrInvalidState, e.State)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// InvariantViolationError reports a cycle in the donation graph. Correct use
// of acquire and release never produces one.
type InvariantViolationError struct {
	Op    string
	Cycle []ThreadID
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("%s: %s: donation cycle through threads %v", e.Op, ErrInvariantViolation, e.Cycle)
}

func (e *InvariantViolationError) Is(target error) bool {
	return target == ErrInvariantViolation
}
