package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aradsms/wa_gateway/internal/platform/database"
	"github.com/aradsms/wa_gateway/internal/scheduler_service/domain"
)

const jobColumns = `id, hook, args, run_at, status, job_group, priority, attempts, last_error, started_at, finished_at, created_at, updated_at`

const insertJobQuery = `
	INSERT INTO queued_jobs (id, hook, args, run_at, status, job_group, priority, attempts, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

type PgJobRepository struct {
	db     database.Querier
	logger *slog.Logger
}

func NewPgJobRepository(db database.Querier, logger *slog.Logger) *PgJobRepository {
	return &PgJobRepository{db: db, logger: logger.With("component", "job_repository_pg")}
}

func insertArgs(job *domain.Job) ([]any, error) {
	argsJSON, err := json.Marshal(job.Args)
	if err != nil {
		return nil, fmt.Errorf("marshal job args: %w", err)
	}
	return []any{
		job.ID, job.Hook, argsJSON, job.RunAt, job.Status, job.Group,
		job.Priority, job.Attempts, job.CreatedAt, job.UpdatedAt,
	}, nil
}

func (r *PgJobRepository) Create(ctx context.Context, job *domain.Job) error {
	args, err := insertArgs(job)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, insertJobQuery, args...); err != nil {
		r.logger.ErrorContext(ctx, "Error creating job", "error", err, "job_id", job.ID, "hook", job.Hook)
		return fmt.Errorf("create job: %w", err)
	}
	r.logger.DebugContext(ctx, "Job created", "job_id", job.ID, "hook", job.Hook, "run_at", job.RunAt)
	return nil
}

// CreateMany inserts all jobs in one transaction.
func (r *PgJobRepository) CreateMany(ctx context.Context, jobs []*domain.Job) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	for _, job := range jobs {
		args, err := insertArgs(job)
		if err == nil {
			_, err = tx.Exec(ctx, insertJobQuery, args...)
		}
		if err != nil {
			r.logger.ErrorContext(ctx, "Error creating job in batch", "error", err, "job_id", job.ID)
			_ = tx.Rollback(ctx)
			return fmt.Errorf("create job batch: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit job batch: %w", err)
	}
	return nil
}

func (r *PgJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM queued_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting job by ID", "error", err, "job_id", id)
		return nil, err
	}
	return job, nil
}

func (r *PgJobRepository) AcquireDueJobs(ctx context.Context, dueTime time.Time, limit int) ([]*domain.Job, error) {
	query := `
		WITH due_job_ids AS (
			SELECT id
			FROM queued_jobs
			WHERE status = $1 AND run_at <= $2
			ORDER BY priority ASC, run_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queued_jobs j
		SET status = $4, started_at = $5, attempts = j.attempts + 1, updated_at = $5
		FROM due_job_ids d
		WHERE j.id = d.id
		RETURNING j.id, j.hook, j.args, j.run_at, j.status, j.job_group, j.priority, j.attempts, j.last_error, j.started_at, j.finished_at, j.created_at, j.updated_at
	`
	now := time.Now().UTC()
	rows, err := r.db.Query(ctx, query, domain.StatusPending, dueTime, limit, domain.StatusRunning, now)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error acquiring due jobs", "error", err)
		return nil, err
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error reading acquired jobs", "error", err)
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, domain.ErrNoDueJobs
	}
	return jobs, nil
}

func (r *PgJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, finishedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE queued_jobs SET status = $1, finished_at = $2, last_error = NULL, updated_at = $2 WHERE id = $3`,
		domain.StatusCompleted, finishedAt, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking job completed", "error", err, "job_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, finishedAt time.Time, errMsg string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE queued_jobs SET status = $1, finished_at = $2, last_error = $3, updated_at = $2 WHERE id = $4`,
		domain.StatusFailed, finishedAt, errMsg, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking job failed", "error", err, "job_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgJobRepository) FailStaleRunning(ctx context.Context, startedBefore time.Time, errMsg string) (int64, error) {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE queued_jobs SET status = $1, finished_at = $2, last_error = $3, updated_at = $2 WHERE status = $4 AND started_at < $5`,
		domain.StatusFailed, now, errMsg, domain.StatusRunning, startedBefore)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error failing stale running jobs", "error", err)
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func matchJSON(argsMatch map[string]any) ([]byte, error) {
	if argsMatch == nil {
		argsMatch = map[string]any{}
	}
	b, err := json.Marshal(argsMatch)
	if err != nil {
		return nil, fmt.Errorf("marshal args match: %w", err)
	}
	return b, nil
}

func (r *PgJobRepository) CancelPending(ctx context.Context, hook string, argsMatch map[string]any) (int64, error) {
	match, err := matchJSON(argsMatch)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE queued_jobs SET status = $1, finished_at = $2, updated_at = $2 WHERE hook = $3 AND status = $4 AND args @> $5::jsonb`,
		domain.StatusCancelled, now, hook, domain.StatusPending, match)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error cancelling jobs", "error", err, "hook", hook)
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgJobRepository) ExistsPending(ctx context.Context, hook string, argsMatch map[string]any) (bool, error) {
	match, err := matchJSON(argsMatch)
	if err != nil {
		return false, err
	}
	var exists bool
	err = r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM queued_jobs WHERE hook = $1 AND status = $2 AND args @> $3::jsonb)`,
		hook, domain.StatusPending, match).Scan(&exists)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error checking scheduled job", "error", err, "hook", hook)
		return false, err
	}
	return exists, nil
}

func (r *PgJobRepository) CountPending(ctx context.Context, hook string) (int, error) {
	var query strings.Builder
	query.WriteString("SELECT COUNT(*) FROM queued_jobs WHERE status = $1")
	args := []any{domain.StatusPending}
	if hook != "" {
		query.WriteString(" AND hook = $2")
		args = append(args, hook)
	}

	var count int
	if err := r.db.QueryRow(ctx, query.String(), args...).Scan(&count); err != nil {
		r.logger.ErrorContext(ctx, "Error counting pending jobs", "error", err, "hook", hook)
		return 0, err
	}
	return count, nil
}

func (r *PgJobRepository) ListFailed(ctx context.Context, limit int) ([]*domain.Job, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM queued_jobs WHERE status = $1 ORDER BY finished_at DESC LIMIT $2`,
		domain.StatusFailed, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing failed jobs", "error", err)
		return nil, err
	}
	return collectJobs(rows)
}

func (r *PgJobRepository) ReplaceFailed(ctx context.Context, oldID uuid.UUID, newJob *domain.Job) error {
	args, err := insertArgs(newJob)
	if err != nil {
		return err
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin retry transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, insertJobQuery, args...); err != nil {
		_ = tx.Rollback(ctx)
		r.logger.ErrorContext(ctx, "Error inserting retried job", "error", err, "old_job_id", oldID)
		return fmt.Errorf("insert retried job: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM queued_jobs WHERE id = $1 AND status = $2`, oldID, domain.StatusFailed)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("delete failed job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return domain.ErrJobNotFailed
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit retry transaction: %w", err)
	}
	r.logger.InfoContext(ctx, "Failed job replaced", "old_job_id", oldID, "new_job_id", newJob.ID)
	return nil
}

func (r *PgJobRepository) PurgeFinished(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM queued_jobs WHERE status = ANY($1) AND finished_at < $2`,
		[]string{string(domain.StatusCompleted), string(domain.StatusCancelled)}, olderThan)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error purging finished jobs", "error", err)
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	defer rows.Close()
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	job := &domain.Job{}
	var argsJSON []byte
	var status string
	if err := row.Scan(
		&job.ID, &job.Hook, &argsJSON, &job.RunAt, &status, &job.Group, &job.Priority,
		&job.Attempts, &job.LastError, &job.StartedAt, &job.FinishedAt, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.Args = map[string]any{}
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &job.Args); err != nil {
			return nil, fmt.Errorf("decode args of job %s: %w", job.ID, err)
		}
	}
	return job, nil
}
