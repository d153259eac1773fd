package protocol

import (
	"errors"
	"fmt"
)

// Handler failure classes. The execution engine maps each class to a
// different recovery policy.
var (
	// ErrRetryable marks a transient failure worth retrying with backoff.
	ErrRetryable = errors.New("retryable failure")

	// ErrCritical marks an unrecoverable failure that aborts the rest of the
	// plan unless continue-on-error is configured.
	ErrCritical = errors.New("critical failure")

	// ErrNonCritical marks an unrecoverable but isolated failure: only the
	// failing task and its dependents are affected.
	ErrNonCritical = errors.New("non-critical failure")
)

// HandlerError carries a failure class alongside the underlying error.
type HandlerError struct {
	Class error
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%v: %v", e.Class, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

func (e *HandlerError) Is(target error) bool {
	return errors.Is(e.Class, target) || errors.Is(e.Err, target)
}

// NewRetryable wraps err as a transient failure.
func NewRetryable(err error) error {
	return &HandlerError{Class: ErrRetryable, Err: err}
}

// NewRetryablef formats a transient failure.
func NewRetryablef(format string, args ...any) error {
	return &HandlerError{Class: ErrRetryable, Err: fmt.Errorf(format, args...)}
}

// NewCritical wraps err as a plan-aborting failure.
func NewCritical(err error) error {
	return &HandlerError{Class: ErrCritical, Err: err}
}

// NewCriticalf formats a plan-aborting failure.
func NewCriticalf(format string, args ...any) error {
	return &HandlerError{Class: ErrCritical, Err: fmt.Errorf(format, args...)}
}

// NewNonCritical wraps err as an isolated failure.
func NewNonCritical(err error) error {
	return &HandlerError{Class: ErrNonCritical, Err: err}
}

// IsRetryable checks if an error is classified as transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

// IsCritical checks if an error is classified as plan-aborting.
func IsCritical(err error) bool {
	return errors.Is(err, ErrCritical)
}
