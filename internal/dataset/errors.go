package dataset

import (
	"errors"
	"fmt"
)

// Error reports an invalid table operation.
type Error struct {
	Dataset string
	Column  string
	Row     int
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Column != "" && e.Row >= 0:
		return fmt.Sprintf("dataset %s: column %s row %d: %s", e.Dataset, e.Column, e.Row, e.Message)
	case e.Column != "":
		return fmt.Sprintf("dataset %s: column %s: %s", e.Dataset, e.Column, e.Message)
	case e.Row >= 0:
		return fmt.Sprintf("dataset %s: row %d: %s", e.Dataset, e.Row, e.Message)
	default:
		return fmt.Sprintf("dataset %s: %s", e.Dataset, e.Message)
	}
}

// IsError reports whether err wraps an *Error.
func IsError(err error) bool {
	var de *Error
	return errors.As(err, &de)
}
