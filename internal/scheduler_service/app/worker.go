package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/aradsms/wa_gateway/internal/platform/auth"
	"github.com/aradsms/wa_gateway/internal/scheduler_service/domain"
)

// JobHandler executes one job. A returned error or a panic marks the job failed.
type JobHandler func(ctx context.Context, args map[string]any) error

// WorkerConfig holds configuration for the Worker.
type WorkerConfig struct {
	PollingInterval time.Duration `mapstructure:"SCHEDULER_POLLING_INTERVAL"`
	JobBatchSize    int           `mapstructure:"SCHEDULER_JOB_BATCH_SIZE"`
	Concurrency     int           `mapstructure:"SCHEDULER_WORKERS"`

	// VisibilityTimeout bounds how long a job may stay running before it is
	// treated as abandoned by a dead worker and marked failed.
	VisibilityTimeout time.Duration `mapstructure:"SCHEDULER_VISIBILITY_TIMEOUT"`
}

const staleJobError = "abandoned: still running after visibility timeout"

// Worker acquires due jobs and runs them on a bounded goroutine pool.
type Worker struct {
	repo   domain.JobRepository
	logger *slog.Logger
	config WorkerConfig

	mu       sync.RWMutex
	handlers map[string]JobHandler
}

func NewWorker(repo domain.JobRepository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 5 * time.Second
	}
	if cfg.JobBatchSize <= 0 {
		cfg.JobBatchSize = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 15 * time.Minute
	}
	return &Worker{
		repo:     repo,
		logger:   logger.With("component", "job_worker"),
		config:   cfg,
		handlers: make(map[string]JobHandler),
	}
}

// Register binds a handler to hook, replacing any previous one.
func (w *Worker) Register(hook string, h JobHandler) {
	w.mu.Lock()
	w.handlers[hook] = h
	w.mu.Unlock()
}

func (w *Worker) handler(hook string) (JobHandler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[hook]
	return h, ok
}

// PollAndProcessJobs acquires due jobs and waits for all of them to finish.
// It returns the number of jobs processed and any critical error.
func (w *Worker) PollAndProcessJobs(ctx context.Context) (int, error) {
	jobs, err := w.repo.AcquireDueJobs(ctx, time.Now().UTC(), w.config.JobBatchSize)
	if err != nil {
		if errors.Is(err, domain.ErrNoDueJobs) {
			w.logger.DebugContext(ctx, "No due jobs found in this poll cycle.")
			return 0, nil
		}
		w.logger.ErrorContext(ctx, "Failed to acquire due jobs", "error", err)
		return 0, fmt.Errorf("failed to acquire due jobs: %w", err)
	}

	w.logger.InfoContext(ctx, "Acquired jobs for processing", "count", len(jobs))

	workerCtx := auth.WithWorkerContext(ctx)
	var g errgroup.Group
	g.SetLimit(w.config.Concurrency)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			w.process(workerCtx, job)
			return nil
		})
	}
	_ = g.Wait()
	return len(jobs), nil
}

func (w *Worker) process(ctx context.Context, job *domain.Job) {
	timer := prometheus.NewTimer(jobProcessingDurationHist.WithLabelValues(job.Hook))
	defer timer.ObserveDuration()

	logger := w.logger.With("job_id", job.ID, "hook", job.Hook, "attempt", job.Attempts)
	logger.InfoContext(ctx, "Processing job")

	runErr := w.execute(ctx, job)

	// Status writes must land even if shutdown cancelled ctx mid-job.
	writeCtx := context.WithoutCancel(ctx)
	finishedAt := time.Now().UTC()
	status := string(domain.StatusCompleted)
	var updateErr error
	if runErr != nil {
		status = string(domain.StatusFailed)
		logger.ErrorContext(ctx, "Job failed", "error", runErr)
		updateErr = w.repo.MarkFailed(writeCtx, job.ID, finishedAt, runErr.Error())
	} else {
		updateErr = w.repo.MarkCompleted(writeCtx, job.ID, finishedAt)
	}
	if updateErr != nil {
		status = "error_update_status"
		logger.ErrorContext(ctx, "Failed to update job status", "update_error", updateErr)
	}
	jobsProcessedCounter.WithLabelValues(job.Hook, status).Inc()
}

func (w *Worker) execute(ctx context.Context, job *domain.Job) (err error) {
	h, ok := w.handler(job.Hook)
	if !ok {
		return fmt.Errorf("no handler registered for hook %q", job.Hook)
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "Job handler panicked", "job_id", job.ID, "hook", job.Hook, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return h(ctx, job.Args)
}

// ReclaimStaleJobs fails running jobs whose start is older than the
// visibility timeout. They can then be retried like any failed job.
func (w *Worker) ReclaimStaleJobs(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-w.config.VisibilityTimeout)
	n, err := w.repo.FailStaleRunning(ctx, cutoff, staleJobError)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale jobs: %w", err)
	}
	if n > 0 {
		jobsReclaimedCounter.Add(float64(n))
		w.logger.WarnContext(ctx, "Marked stale running jobs as failed", "count", n, "visibility_timeout", w.config.VisibilityTimeout)
	}
	return n, nil
}

// Run polls on a ticker until ctx is done. Store errors are logged and the
// next tick tries again.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting job worker", "polling_interval", w.config.PollingInterval, "concurrency", w.config.Concurrency)
	ticker := time.NewTicker(w.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.ReclaimStaleJobs(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Stale job reclaim failed", "error", err)
			}
			processed, err := w.PollAndProcessJobs(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				pollErrorsCounter.Inc()
				w.logger.ErrorContext(ctx, "Job poll failed, retrying on next tick", "error", err)
				continue
			}
			if processed > 0 {
				w.logger.InfoContext(ctx, "Job worker processed jobs in this tick", "count", processed)
			}
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Job worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}
