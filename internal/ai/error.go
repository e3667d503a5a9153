package ai

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a generation failure after the adapter has given up.
type ErrorKind string

const (
	KindTimeout         ErrorKind = "timeout"
	KindRateLimited     ErrorKind = "rate_limited"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindProviderFault   ErrorKind = "provider_fault"
)

// Error is a generation failure surfaced by an Interviewer implementation.
// Retries are already exhausted by the time callers observe one.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generation failed: %s", e.Kind)
	}
	return fmt.Sprintf("generation failed (%s): %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a generation failure of the given kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the failure kind from err. The second return is false when
// err does not carry a generation Error.
func KindOf(err error) (ErrorKind, bool) {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind, true
	}
	return "", false
}
