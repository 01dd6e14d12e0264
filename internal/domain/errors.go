package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a filtered query matches nothing.
var ErrNotFound = errors.New("not found")

// ValidationError reports a malformed or out-of-range input. It is raised
// before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
