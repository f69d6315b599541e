package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobRepository defines the durable storage behind the job queue.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	CreateMany(ctx context.Context, jobs []*Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// AcquireDueJobs moves up to limit pending jobs due at or before dueTime
	// to running and returns them. Rows locked by another worker are skipped.
	AcquireDueJobs(ctx context.Context, dueTime time.Time, limit int) ([]*Job, error)

	MarkCompleted(ctx context.Context, id uuid.UUID, finishedAt time.Time) error
	// MarkFailed records the error; hook and args are left untouched.
	MarkFailed(ctx context.Context, id uuid.UUID, finishedAt time.Time, errMsg string) error
	// FailStaleRunning marks running jobs started before startedBefore as
	// failed so a crashed worker's jobs become retryable.
	FailStaleRunning(ctx context.Context, startedBefore time.Time, errMsg string) (int64, error)

	// CancelPending cancels pending jobs for hook whose args contain argsMatch.
	CancelPending(ctx context.Context, hook string, argsMatch map[string]any) (int64, error)
	ExistsPending(ctx context.Context, hook string, argsMatch map[string]any) (bool, error)
	// CountPending counts pending jobs; an empty hook counts every hook.
	CountPending(ctx context.Context, hook string) (int, error)
	ListFailed(ctx context.Context, limit int) ([]*Job, error)

	// ReplaceFailed atomically inserts newJob and deletes the failed job oldID.
	ReplaceFailed(ctx context.Context, oldID uuid.UUID, newJob *Job) error

	// PurgeFinished removes completed and cancelled jobs finished before olderThan.
	PurgeFinished(ctx context.Context, olderThan time.Time) (int64, error)
}
