package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAuthentication covers a bad or missing signature or verify token.
	ErrAuthentication = errors.New("webhook authentication failed")
	// ErrValidation covers malformed JSON, envelope shape and field formats.
	ErrValidation = errors.New("webhook validation failed")
	// ErrDuplicateEvent marks an external id that was already claimed. It is a skip, not a failure.
	ErrDuplicateEvent = errors.New("duplicate webhook event")

	ErrInvalidExternalID = fmt.Errorf("%w: invalid external id", ErrValidation)
	ErrInvalidPhone      = fmt.Errorf("%w: invalid phone number", ErrValidation)
)

// RateLimitError is returned when a client exhausts its request budget.
type RateLimitError struct {
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.ResetAfter)
}
