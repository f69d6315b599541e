package graphapi

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed Graph API call.
type ErrorKind string

const (
	KindNetwork           ErrorKind = "network"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindApplication       ErrorKind = "application"
	KindRateLimited       ErrorKind = "rate_limited"
	KindServer            ErrorKind = "server"
	KindCircuitOpen       ErrorKind = "circuit_open"
)

// APIError is the terminal error of a Do call. It carries the context of the
// last attempt made.
type APIError struct {
	Kind       ErrorKind
	Method     string
	Endpoint   string
	StatusCode int
	// Code, Type and Subcode come from the Graph "error" object when present.
	Code     int
	Type     string
	Subcode  int
	Message  string
	Body     string
	Attempts int
	Err      error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindApplication, KindRateLimited, KindServer:
		return fmt.Sprintf("graph api %s %s: %s (status=%d code=%d type=%s subcode=%d attempts=%d): %s",
			e.Method, e.Endpoint, e.Kind, e.StatusCode, e.Code, e.Type, e.Subcode, e.Attempts, e.Message)
	default:
		return fmt.Sprintf("graph api %s %s: %s (attempts=%d): %s", e.Method, e.Endpoint, e.Kind, e.Attempts, e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying.
func (e *APIError) Transient() bool {
	switch e.Kind {
	case KindNetwork, KindRateLimited, KindServer:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is a retryable *APIError. It is also the
// breaker failure predicate: application errors mean the dependency is up.
func IsTransient(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Transient()
}

// IsCircuitOpen reports whether err means the call was never attempted.
func IsCircuitOpen(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindCircuitOpen
}
