package leads

import "errors"

var (
	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrInvalidTransition is returned when a status update would move a
	// lead backwards
	ErrInvalidTransition = errors.New("invalid lead status transition")
)
