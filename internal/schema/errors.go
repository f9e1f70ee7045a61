package schema

import (
	"errors"
	"fmt"
)

// ErrInvalidPayload is the sentinel matched by errors.Is for every
// validation failure produced by this package.
var ErrInvalidPayload = errors.New("schema: invalid payload")

// ValidationError reports the first field that failed validation together
// with the offending value. It is returned, never panicked, so callers can
// reject a payload at the boundary and keep going.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema: field %q: %s (got %v)", e.Field, e.Reason, e.Value)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidPayload }

func invalid(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}
