package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedConstraint signals stored constraint data that cannot be decoded.
	ErrMalformedConstraint = errors.New("malformed constraint")
	// ErrTaskNotFound is returned when no task matches a task id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrDuplicateTask is returned when a create reuses an existing task id.
	ErrDuplicateTask = errors.New("task already exists")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
