package domain

import "errors"

var (
	// ErrUnsupportedOperation is returned for operations no processor knows
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrInvalidPayload is returned when the task payload cannot be decoded
	ErrInvalidPayload = errors.New("invalid task payload")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
