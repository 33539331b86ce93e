package state

import (
	"errors"
	"fmt"
)

// FieldError reports a write or lookup that does not fit a container's
// field table.
type FieldError struct {
	Container string
	Field     string
	Message   string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("state %s: field %q: %s", e.Container, e.Field, e.Message)
}

// IsFieldError reports whether err wraps a *FieldError.
func IsFieldError(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}
