package machine

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or out-of-range input. Nothing is
// mutated when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing machine or embedded entry.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// PersistenceError wraps a storage failure. The logical operation may be
// retried, except RecordOperatingHours whose commit state must be checked first.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConflictError is returned when a machine kept changing underneath an
// update and the optimistic retry budget ran out.
type ConflictError struct {
	MachineID string
	Attempts  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("machine %q was modified concurrently (%d attempts)", e.MachineID, e.Attempts)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}
