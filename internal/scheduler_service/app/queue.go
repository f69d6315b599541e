package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aradsms/wa_gateway/internal/platform/auth"
	"github.com/aradsms/wa_gateway/internal/scheduler_service/domain"
)

// DefaultPriority is used when a dispatch does not name one. Lower runs first.
const DefaultPriority = 10

// DispatchOptions tunes a single dispatch.
type DispatchOptions struct {
	Delay    time.Duration
	Priority int
	Group    string
}

// Queue is the producer side of the job queue. Dispatch never waits for execution.
type Queue struct {
	repo          domain.JobRepository
	logger        *slog.Logger
	internalHooks map[string]struct{}
	now           func() time.Time
}

// NewQueue creates a queue. internalHooks may be dispatched from any context.
func NewQueue(repo domain.JobRepository, logger *slog.Logger, internalHooks ...string) *Queue {
	allow := make(map[string]struct{}, len(internalHooks))
	for _, h := range internalHooks {
		allow[h] = struct{}{}
	}
	return &Queue{
		repo:          repo,
		logger:        logger.With("component", "job_queue"),
		internalHooks: allow,
		now:           time.Now,
	}
}

// authorize allows the worker context, allowlisted hooks and admin principals.
func (q *Queue) authorize(ctx context.Context, hook string) error {
	if auth.IsWorkerContext(ctx) {
		return nil
	}
	if _, ok := q.internalHooks[hook]; ok {
		return nil
	}
	if auth.IsAdmin(ctx) {
		return nil
	}
	p, _ := auth.PrincipalFrom(ctx)
	q.logger.WarnContext(ctx, "Rejected unauthorized job dispatch", "hook", hook, "principal_id", p.ID)
	unauthorizedDispatchCounter.WithLabelValues(hook).Inc()
	return domain.ErrUnauthorizedDispatch
}

// Dispatch schedules hook to run no earlier than now+delay. Unauthorized
// callers get uuid.Nil and ErrUnauthorizedDispatch.
func (q *Queue) Dispatch(ctx context.Context, hook string, args map[string]any, delay time.Duration) (uuid.UUID, error) {
	return q.DispatchWithOptions(ctx, hook, args, DispatchOptions{Delay: delay, Priority: DefaultPriority})
}

// Enqueue is Dispatch with an explicit priority.
func (q *Queue) Enqueue(ctx context.Context, hook string, args map[string]any, delay time.Duration, priority int) (uuid.UUID, error) {
	return q.DispatchWithOptions(ctx, hook, args, DispatchOptions{Delay: delay, Priority: priority})
}

func (q *Queue) DispatchWithOptions(ctx context.Context, hook string, args map[string]any, opts DispatchOptions) (uuid.UUID, error) {
	if err := q.authorize(ctx, hook); err != nil {
		return uuid.Nil, err
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	job := domain.NewJob(hook, args, q.now().Add(opts.Delay), opts.Group, opts.Priority)
	if err := q.repo.Create(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("dispatch %s: %w", hook, err)
	}
	jobsDispatchedCounter.WithLabelValues(hook).Inc()
	q.logger.InfoContext(ctx, "Job dispatched", "job_id", job.ID, "hook", hook, "run_at", job.RunAt)
	return job.ID, nil
}

// DispatchBatch splits items into chunks of batchSize. Chunk k runs after
// k*interBatchDelay, so a rate-limited downstream sees linear backpressure.
func (q *Queue) DispatchBatch(ctx context.Context, hook string, items []map[string]any, batchSize int, interBatchDelay time.Duration) ([]uuid.UUID, error) {
	if batchSize <= 0 {
		return nil, domain.ErrInvalidBatch
	}
	if err := q.authorize(ctx, hook); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []uuid.UUID{}, nil
	}

	batchCount := (len(items) + batchSize - 1) / batchSize
	group := "batch:" + uuid.NewString()
	base := q.now()
	jobs := make([]*domain.Job, 0, batchCount)
	for k := 0; k < batchCount; k++ {
		end := (k + 1) * batchSize
		if end > len(items) {
			end = len(items)
		}
		args := map[string]any{
			"items":       items[k*batchSize : end],
			"batch_index": k,
			"batch_count": batchCount,
		}
		runAt := base.Add(time.Duration(k) * interBatchDelay)
		jobs = append(jobs, domain.NewJob(hook, args, runAt, group, DefaultPriority))
	}

	if err := q.repo.CreateMany(ctx, jobs); err != nil {
		return nil, fmt.Errorf("dispatch batch %s: %w", hook, err)
	}

	ids := make([]uuid.UUID, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	jobsDispatchedCounter.WithLabelValues(hook).Add(float64(len(jobs)))
	q.logger.InfoContext(ctx, "Job batch dispatched", "hook", hook, "group", group, "batches", batchCount, "items", len(items))
	return ids, nil
}

// Cancel stops pending jobs for hook whose args contain argsMatch. Jobs
// already running are not affected.
func (q *Queue) Cancel(ctx context.Context, hook string, argsMatch map[string]any) (int64, error) {
	n, err := q.repo.CancelPending(ctx, hook, argsMatch)
	if err != nil {
		return 0, fmt.Errorf("cancel %s: %w", hook, err)
	}
	q.logger.InfoContext(ctx, "Jobs cancelled", "hook", hook, "count", n)
	return n, nil
}

func (q *Queue) IsScheduled(ctx context.Context, hook string, argsMatch map[string]any) (bool, error) {
	return q.repo.ExistsPending(ctx, hook, argsMatch)
}

func (q *Queue) PendingCount(ctx context.Context, hook string) (int, error) {
	return q.repo.CountPending(ctx, hook)
}

func (q *Queue) FailedJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return q.repo.ListFailed(ctx, limit)
}

// RetryFailedJob re-dispatches an identical copy of a failed job and removes
// the failed row. It returns the new job id.
func (q *Queue) RetryFailedJob(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	job, err := q.repo.GetByID(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if job.Status != domain.StatusFailed {
		return uuid.Nil, domain.ErrJobNotFailed
	}
	if err := q.authorize(ctx, job.Hook); err != nil {
		return uuid.Nil, err
	}

	retry := job.CloneForRetry()
	if err := q.repo.ReplaceFailed(ctx, job.ID, retry); err != nil {
		return uuid.Nil, fmt.Errorf("retry job %s: %w", id, err)
	}
	jobsDispatchedCounter.WithLabelValues(job.Hook).Inc()
	q.logger.InfoContext(ctx, "Failed job re-dispatched", "old_job_id", id, "new_job_id", retry.ID, "hook", job.Hook)
	return retry.ID, nil
}

// RetryFailedJobs retries up to limit failed jobs, skipping ones that fail to re-dispatch.
func (q *Queue) RetryFailedJobs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	jobs, err := q.FailedJobs(ctx, limit)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	var errs []error
	for _, j := range jobs {
		newID, err := q.RetryFailedJob(ctx, j.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, newID)
	}
	return ids, errors.Join(errs...)
}

// PurgeFinished deletes completed and cancelled jobs older than the cutoff.
func (q *Queue) PurgeFinished(ctx context.Context, olderThan time.Time) (int64, error) {
	return q.repo.PurgeFinished(ctx, olderThan)
}
