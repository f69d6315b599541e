package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stateColumns = []string{"service_name", "state", "failure_count", "success_count", "last_failure_at", "last_success_at", "opened_at"}

func TestPgStateStore_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPgStateStore(mockPool, testLogger())

		openedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		rows := mockPool.NewRows(stateColumns).
			AddRow("graph", "open", 5, 2, &openedAt, (*time.Time)(nil), &openedAt)
		mockPool.ExpectQuery(`SELECT service_name, state, failure_count, success_count, last_failure_at, last_success_at, opened_at FROM circuit_breaker_states WHERE service_name = \$1`).
			WithArgs("graph").
			WillReturnRows(rows)

		snap, err := store.Load(ctx, "graph")
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, Open, snap.State)
		assert.Equal(t, 5, snap.FailureCount)
		assert.Nil(t, snap.LastSuccessAt)
		assert.Equal(t, openedAt, *snap.OpenedAt)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPgStateStore(mockPool, testLogger())

		mockPool.ExpectQuery(`FROM circuit_breaker_states WHERE service_name = \$1`).
			WithArgs("graph").
			WillReturnError(pgx.ErrNoRows)

		snap, err := store.Load(ctx, "graph")
		assert.NoError(t, err)
		assert.Nil(t, snap)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("DBError", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := NewPgStateStore(mockPool, testLogger())

		mockPool.ExpectQuery(`FROM circuit_breaker_states WHERE service_name = \$1`).
			WithArgs("graph").
			WillReturnError(errors.New("connection reset"))

		_, err = store.Load(ctx, "graph")
		assert.Error(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgStateStore_Save(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	store := NewPgStateStore(mockPool, testLogger())

	openedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snap := &Snapshot{ServiceName: "graph", State: Open, FailureCount: 5, OpenedAt: &openedAt, LastFailureAt: &openedAt}

	mockPool.ExpectExec(`INSERT INTO circuit_breaker_states .* ON CONFLICT \(service_name\) DO UPDATE SET`).
		WithArgs("graph", "open", 5, 0, snap.LastFailureAt, snap.LastSuccessAt, snap.OpenedAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), snap))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestBreaker_StoreFailureDoesNotFailCall(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	store := NewPgStateStore(mockPool, testLogger())

	mockPool.ExpectQuery(`FROM circuit_breaker_states WHERE service_name = \$1`).
		WithArgs("graph").
		WillReturnError(pgx.ErrNoRows)
	mockPool.ExpectExec(`INSERT INTO circuit_breaker_states`).
		WithArgs("graph", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))

	b := New(Config{Name: "graph"}, store, testLogger())
	assert.NoError(t, b.Execute(context.Background(), succeed, nil))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
