package domain

import "errors"

var (
	// ErrValidation is returned for bad or missing input; never retried
	ErrValidation = errors.New("invalid input")

	// ErrAuthentication is returned when no valid principal is present
	ErrAuthentication = errors.New("authentication failed")

	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrUserNotFound is returned when a user cannot be found in the store
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned when registering an already-used email
	ErrEmailTaken = errors.New("email already registered")

	// ErrAlreadyTerminal is returned when a terminal update hits a job that
	// is already Done or Failed. The first terminal write wins; callers
	// treat this as success.
	ErrAlreadyTerminal = errors.New("job already in terminal state")

	// ErrStoreUnavailable marks transient job store failures
	ErrStoreUnavailable = errors.New("job store unavailable")

	// ErrChannelUnavailable marks transient task channel failures
	ErrChannelUnavailable = errors.New("task channel unavailable")
)
