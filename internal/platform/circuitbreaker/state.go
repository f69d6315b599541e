package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is returned (wrapped in *OpenError) when a call is short-circuited.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of String; unknown values map to Closed.
func ParseState(s string) State {
	switch s {
	case "open":
		return Open
	case "half_open":
		return HalfOpen
	default:
		return Closed
	}
}

// Snapshot is the persisted state of one breaker.
type Snapshot struct {
	ServiceName   string     `json:"service_name"`
	State         State      `json:"-"`
	StateName     string     `json:"state"`
	FailureCount  int        `json:"failure_count"`
	SuccessCount  int        `json:"success_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	OpenedAt      *time.Time `json:"opened_at,omitempty"`
}

// OpenError reports a short-circuited call and when the next trial call is allowed.
type OpenError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("service %s temporarily unavailable: %s (retry after %s)", e.Service, ErrCircuitOpen, e.RetryAfter)
}

func (e *OpenError) Unwrap() error { return ErrCircuitOpen }

// StateStore persists breaker state so it survives restarts.
// Load returns (nil, nil) when no row exists yet.
type StateStore interface {
	Load(ctx context.Context, serviceName string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	List(ctx context.Context) ([]*Snapshot, error)
}
