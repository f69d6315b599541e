package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a queued job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"   // Picked up by a worker
	StatusCompleted JobStatus = "completed" // Handler returned without error
	StatusFailed    JobStatus = "failed"    // Handler failed; kept until retried or purged
	StatusCancelled JobStatus = "cancelled" // Cancelled before it ran
)

// Job is one unit of deferred work, addressed by a logical hook name.
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Hook       string         `json:"hook"`
	Args       map[string]any `json:"args"`
	RunAt      time.Time      `json:"run_at"`
	Status     JobStatus      `json:"status"`
	Group      string         `json:"group,omitempty"`
	Priority   int            `json:"priority"`
	Attempts   int            `json:"attempts"`
	LastError  *string        `json:"last_error,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewJob creates a pending job due at runAt.
func NewJob(hook string, args map[string]any, runAt time.Time, group string, priority int) *Job {
	if args == nil {
		args = map[string]any{}
	}
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New(),
		Hook:      hook,
		Args:      args,
		RunAt:     runAt.UTC(),
		Status:    StatusPending,
		Group:     group,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CloneForRetry returns a fresh pending job with the same hook, args, group
// and priority, due immediately.
func (j *Job) CloneForRetry() *Job {
	return NewJob(j.Hook, j.Args, time.Now().UTC(), j.Group, j.Priority)
}
