package interview

import (
	"errors"
	"fmt"
)

// ValidationError rejects bad client input. The session state is unchanged
// when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// NotFoundError signals an unknown session id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nerr *NotFoundError
	return errors.As(err, &nerr)
}

// InvariantError signals a broken internal invariant (non-contiguous turns,
// more than one active turn). It is fatal to the session and always logged.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("internal invariant violated: %s", e.Reason)
}

// IsInvariant reports whether err is an InvariantError.
func IsInvariant(err error) bool {
	var ierr *InvariantError
	return errors.As(err, &ierr)
}
