package engine

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by Call when the engine no longer accepts events.
var ErrStopped = errors.New("engine stopped")

// EventError wraps the failure of a single event.
type EventError struct {
	Name string
	Seq  int64
	Err  error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("event %s (seq=%d): %v", e.Name, e.Seq, e.Err)
}

func (e *EventError) Unwrap() error { return e.Err }

// PanicError is the error recorded for an event whose closure panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// IsPanic reports whether err wraps a recovered panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
