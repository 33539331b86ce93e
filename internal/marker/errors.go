package marker

import (
	"errors"
	"fmt"
)

// InvalidMarkerError is returned when a marker outside the sequence is
// requested. The machine state is unchanged.
type InvalidMarkerError struct {
	Marker string
}

// Error implements the error interface.
func (e *InvalidMarkerError) Error() string {
	return fmt.Sprintf("invalid marker %q", e.Marker)
}

// IsInvalidMarker reports whether err wraps an *InvalidMarkerError.
func IsInvalidMarker(err error) bool {
	var ie *InvalidMarkerError
	return errors.As(err, &ie)
}

// SequenceError reports a malformed marker sequence.
type SequenceError struct {
	Message string
}

// Error implements the error interface.
func (e *SequenceError) Error() string {
	return "marker sequence: " + e.Message
}

// RuleError reports a skip rule that cannot be used.
type RuleError struct {
	From    string
	To      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("skip rule %s -> %s: %s: %v", e.From, e.To, e.Message, e.Err)
	}
	return fmt.Sprintf("skip rule %s -> %s: %s", e.From, e.To, e.Message)
}

// Unwrap returns the underlying error.
func (e *RuleError) Unwrap() error {
	return e.Err
}
