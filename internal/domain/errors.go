package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any gateway call.
	ErrValidation = errors.New("validation error")

	// ErrPersistence marks a failed gateway call (network, constraint or access denial).
	ErrPersistence = errors.New("persistence error")

	// ErrNotAuthenticated marks an operation attempted without a valid session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotFound is returned by gateways for ids that are absent or not owned by the caller.
	ErrNotFound = errors.New("bookmark not found")

	// ErrForeignOwner marks a remote event or record attributed to another owner.
	ErrForeignOwner = errors.New("record belongs to another owner")

	// ErrCanceled is returned by a create whose pending entry was canceled before acknowledgment.
	ErrCanceled = errors.New("create canceled before acknowledgment")
)

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PersistenceError wraps a gateway failure with the operation that produced it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a *PersistenceError unless it already is one.
// Returns nil for a nil err.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
