package domain

import "errors"

var (
	// ErrNotFound indicates that a requested job was not found.
	ErrNotFound = errors.New("job not found")
	// ErrNoDueJobs indicates that no jobs are currently due for processing.
	ErrNoDueJobs = errors.New("no due jobs found")
	// ErrUnauthorizedDispatch is returned when the caller may not enqueue the hook.
	ErrUnauthorizedDispatch = errors.New("unauthorized job dispatch")
	// ErrJobNotFailed is returned when retrying a job that is not in failed state.
	ErrJobNotFailed = errors.New("job is not in failed state")
	// ErrInvalidBatch is returned for a non-positive batch size.
	ErrInvalidBatch = errors.New("batch size must be positive")
)
