package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/wa_gateway/internal/scheduler_service/domain"
)

var jobCols = []string{"id", "hook", "args", "run_at", "status", "job_group", "priority", "attempts", "last_error", "started_at", "finished_at", "created_at", "updated_at"}

func newRepo(t *testing.T) (*PgJobRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPgJobRepository(mockPool, logger), mockPool
}

func jobRow(rows *pgxmock.Rows, id uuid.UUID, status domain.JobStatus, args string, lastErr *string) *pgxmock.Rows {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return rows.AddRow(id, "eventbus.process_async", []byte(args), now, string(status), "", 10, 1, lastErr, &now, (*time.Time)(nil), now, now)
}

func TestPgJobRepository_Create(t *testing.T) {
	repo, mockPool := newRepo(t)
	job := domain.NewJob("campaign.send", map[string]any{"campaign_id": "c1"}, time.Now(), "g", 5)

	mockPool.ExpectExec(`INSERT INTO queued_jobs \(id, hook, args, run_at, status, job_group, priority, attempts, created_at, updated_at\)`).
		WithArgs(job.ID, "campaign.send", []byte(`{"campaign_id":"c1"}`), job.RunAt, domain.StatusPending, "g", 5, 0, job.CreatedAt, job.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), job))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_CreateMany_RollsBackOnError(t *testing.T) {
	repo, mockPool := newRepo(t)
	jobs := []*domain.Job{
		domain.NewJob("h", nil, time.Now(), "", 10),
		domain.NewJob("h", nil, time.Now(), "", 10),
	}

	mockPool.ExpectBegin()
	mockPool.ExpectExec(`INSERT INTO queued_jobs`).WithArgs(anyArgs(10)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec(`INSERT INTO queued_jobs`).WithArgs(anyArgs(10)...).WillReturnError(errors.New("deadlock"))
	mockPool.ExpectRollback()

	err := repo.CreateMany(context.Background(), jobs)
	assert.Error(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_AcquireDueJobs(t *testing.T) {
	ctx := context.Background()
	due := time.Now().UTC()

	t.Run("Acquired", func(t *testing.T) {
		repo, mockPool := newRepo(t)
		id := uuid.New()
		rows := jobRow(mockPool.NewRows(jobCols), id, domain.StatusRunning, `{"event_name":"webhook.messages"}`, nil)
		mockPool.ExpectQuery(`WITH due_job_ids AS \(.*FOR UPDATE SKIP LOCKED.*\) UPDATE queued_jobs j`).
			WithArgs(domain.StatusPending, due, 5, domain.StatusRunning, pgxmock.AnyArg()).
			WillReturnRows(rows)

		jobs, err := repo.AcquireDueJobs(ctx, due, 5)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, id, jobs[0].ID)
		assert.Equal(t, domain.StatusRunning, jobs[0].Status)
		assert.Equal(t, "webhook.messages", jobs[0].Args["event_name"])
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NoneDue", func(t *testing.T) {
		repo, mockPool := newRepo(t)
		mockPool.ExpectQuery(`WITH due_job_ids AS`).
			WithArgs(domain.StatusPending, due, 5, domain.StatusRunning, pgxmock.AnyArg()).
			WillReturnRows(mockPool.NewRows(jobCols))

		_, err := repo.AcquireDueJobs(ctx, due, 5)
		assert.ErrorIs(t, err, domain.ErrNoDueJobs)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgJobRepository_GetByID_NotFound(t *testing.T) {
	repo, mockPool := newRepo(t)
	id := uuid.New()
	mockPool.ExpectQuery(`SELECT .* FROM queued_jobs WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_MarkFailed_KeepsArgs(t *testing.T) {
	repo, mockPool := newRepo(t)
	id := uuid.New()
	at := time.Now().UTC()

	// Only status, timestamps and error are written; args are never part of the update.
	mockPool.ExpectExec(`UPDATE queued_jobs SET status = \$1, finished_at = \$2, last_error = \$3, updated_at = \$2 WHERE id = \$4`).
		WithArgs(domain.StatusFailed, at, "handler exploded", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.MarkFailed(context.Background(), id, at, "handler exploded"))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_FailStaleRunning(t *testing.T) {
	repo, mockPool := newRepo(t)
	cutoff := time.Now().Add(-15 * time.Minute)

	mockPool.ExpectExec(`UPDATE queued_jobs SET status = \$1, finished_at = \$2, last_error = \$3, updated_at = \$2 WHERE status = \$4 AND started_at < \$5`).
		WithArgs(domain.StatusFailed, pgxmock.AnyArg(), "worker lost", domain.StatusRunning, cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := repo.FailStaleRunning(context.Background(), cutoff, "worker lost")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_MarkCompleted_NotFound(t *testing.T) {
	repo, mockPool := newRepo(t)
	id := uuid.New()
	at := time.Now().UTC()
	mockPool.ExpectExec(`UPDATE queued_jobs SET status = \$1`).
		WithArgs(domain.StatusCompleted, at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.MarkCompleted(context.Background(), id, at), domain.ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_CancelAndExists(t *testing.T) {
	ctx := context.Background()
	repo, mockPool := newRepo(t)
	match := map[string]any{"campaign_id": "c1"}

	mockPool.ExpectExec(`UPDATE queued_jobs SET status = \$1, finished_at = \$2, updated_at = \$2 WHERE hook = \$3 AND status = \$4 AND args @> \$5::jsonb`).
		WithArgs(domain.StatusCancelled, pgxmock.AnyArg(), "campaign.send", domain.StatusPending, []byte(`{"campaign_id":"c1"}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mockPool.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM queued_jobs WHERE hook = \$1 AND status = \$2 AND args @> \$3::jsonb\)`).
		WithArgs("campaign.send", domain.StatusPending, []byte(`{"campaign_id":"c1"}`)).
		WillReturnRows(mockPool.NewRows([]string{"exists"}).AddRow(false))

	n, err := repo.CancelPending(ctx, "campaign.send", match)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	exists, err := repo.ExistsPending(ctx, "campaign.send", match)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_CountPending(t *testing.T) {
	ctx := context.Background()
	repo, mockPool := newRepo(t)

	mockPool.ExpectQuery(`SELECT COUNT\(\*\) FROM queued_jobs WHERE status = \$1 AND hook = \$2`).
		WithArgs(domain.StatusPending, "campaign.send").
		WillReturnRows(mockPool.NewRows([]string{"count"}).AddRow(4))
	mockPool.ExpectQuery(`SELECT COUNT\(\*\) FROM queued_jobs WHERE status = \$1$`).
		WithArgs(domain.StatusPending).
		WillReturnRows(mockPool.NewRows([]string{"count"}).AddRow(9))

	n, err := repo.CountPending(ctx, "campaign.send")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = repo.CountPending(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_ListFailed(t *testing.T) {
	repo, mockPool := newRepo(t)
	id := uuid.New()
	msg := "boom"
	rows := jobRow(mockPool.NewRows(jobCols), id, domain.StatusFailed, `{"event_name":"order.created","event_data":{"id":"o1"}}`, &msg)
	mockPool.ExpectQuery(`FROM queued_jobs WHERE status = \$1 ORDER BY finished_at DESC LIMIT \$2`).
		WithArgs(domain.StatusFailed, 20).
		WillReturnRows(rows)

	jobs, err := repo.ListFailed(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NotNil(t, jobs[0].LastError)
	assert.Equal(t, "boom", *jobs[0].LastError)
	assert.Equal(t, map[string]any{"id": "o1"}, jobs[0].Args["event_data"])
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_ReplaceFailed(t *testing.T) {
	ctx := context.Background()
	oldID := uuid.New()

	t.Run("Committed", func(t *testing.T) {
		repo, mockPool := newRepo(t)
		newJob := domain.NewJob("h", map[string]any{"a": 1}, time.Now(), "", 10)

		mockPool.ExpectBegin()
		mockPool.ExpectExec(`INSERT INTO queued_jobs`).
			WithArgs(newJob.ID, "h", []byte(`{"a":1}`), newJob.RunAt, domain.StatusPending, "", 10, 0, newJob.CreatedAt, newJob.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(`DELETE FROM queued_jobs WHERE id = \$1 AND status = \$2`).
			WithArgs(oldID, domain.StatusFailed).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mockPool.ExpectCommit()

		require.NoError(t, repo.ReplaceFailed(ctx, oldID, newJob))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("OldJobNotFailed", func(t *testing.T) {
		repo, mockPool := newRepo(t)
		newJob := domain.NewJob("h", nil, time.Now(), "", 10)

		mockPool.ExpectBegin()
		mockPool.ExpectExec(`INSERT INTO queued_jobs`).WithArgs(anyArgs(10)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(`DELETE FROM queued_jobs`).
			WithArgs(oldID, domain.StatusFailed).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectRollback()

		assert.ErrorIs(t, repo.ReplaceFailed(ctx, oldID, newJob), domain.ErrJobNotFailed)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgJobRepository_PurgeFinished(t *testing.T) {
	repo, mockPool := newRepo(t)
	cutoff := time.Now().Add(-24 * time.Hour)
	mockPool.ExpectExec(`DELETE FROM queued_jobs WHERE status = ANY\(\$1\) AND finished_at < \$2`).
		WithArgs([]string{"completed", "cancelled"}, cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))

	n, err := repo.PurgeFinished(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

// anyArgs matches n bound parameters of any value.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}
