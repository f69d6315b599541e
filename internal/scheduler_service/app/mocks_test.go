package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/aradsms/wa_gateway/internal/scheduler_service/domain"
)

type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) CreateMany(ctx context.Context, jobs []*domain.Job) error {
	args := m.Called(ctx, jobs)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobRepository) AcquireDueJobs(ctx context.Context, dueTime time.Time, limit int) ([]*domain.Job, error) {
	args := m.Called(ctx, dueTime, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Job), args.Error(1)
}

func (m *MockJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, finishedAt time.Time) error {
	args := m.Called(ctx, id, finishedAt)
	return args.Error(0)
}

func (m *MockJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, finishedAt time.Time, errMsg string) error {
	args := m.Called(ctx, id, finishedAt, errMsg)
	return args.Error(0)
}

func (m *MockJobRepository) FailStaleRunning(ctx context.Context, startedBefore time.Time, errMsg string) (int64, error) {
	args := m.Called(ctx, startedBefore, errMsg)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJobRepository) CancelPending(ctx context.Context, hook string, argsMatch map[string]any) (int64, error) {
	args := m.Called(ctx, hook, argsMatch)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJobRepository) ExistsPending(ctx context.Context, hook string, argsMatch map[string]any) (bool, error) {
	args := m.Called(ctx, hook, argsMatch)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) CountPending(ctx context.Context, hook string) (int, error) {
	args := m.Called(ctx, hook)
	return args.Int(0), args.Error(1)
}

func (m *MockJobRepository) ListFailed(ctx context.Context, limit int) ([]*domain.Job, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Job), args.Error(1)
}

func (m *MockJobRepository) ReplaceFailed(ctx context.Context, oldID uuid.UUID, newJob *domain.Job) error {
	args := m.Called(ctx, oldID, newJob)
	return args.Error(0)
}

func (m *MockJobRepository) PurgeFinished(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
