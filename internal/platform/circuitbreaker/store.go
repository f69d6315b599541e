package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aradsms/wa_gateway/internal/platform/database"
)

// MemoryStateStore keeps snapshots in process memory.
type MemoryStateStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{snaps: make(map[string]Snapshot)}
}

func (s *MemoryStateStore) Load(_ context.Context, serviceName string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[serviceName]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *MemoryStateStore) Save(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ServiceName] = *snap
	return nil
}

func (s *MemoryStateStore) List(_ context.Context) ([]*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Snapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		cp := snap
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceName < out[j].ServiceName })
	return out, nil
}

// PgStateStore persists one row per service in circuit_breaker_states.
type PgStateStore struct {
	db     database.Querier
	logger *slog.Logger
}

func NewPgStateStore(db database.Querier, logger *slog.Logger) *PgStateStore {
	return &PgStateStore{db: db, logger: logger.With("component", "circuit_breaker_store_pg")}
}

const selectStateColumns = `SELECT service_name, state, failure_count, success_count, last_failure_at, last_success_at, opened_at FROM circuit_breaker_states`

func (s *PgStateStore) Load(ctx context.Context, serviceName string) (*Snapshot, error) {
	row := s.db.QueryRow(ctx, selectStateColumns+` WHERE service_name = $1`, serviceName)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		s.logger.ErrorContext(ctx, "Error loading circuit breaker state", "error", err, "service", serviceName)
		return nil, fmt.Errorf("load breaker state %s: %w", serviceName, err)
	}
	return snap, nil
}

func (s *PgStateStore) Save(ctx context.Context, snap *Snapshot) error {
	query := `
		INSERT INTO circuit_breaker_states (service_name, state, failure_count, success_count, last_failure_at, last_success_at, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (service_name) DO UPDATE SET
			state = EXCLUDED.state,
			failure_count = EXCLUDED.failure_count,
			success_count = EXCLUDED.success_count,
			last_failure_at = EXCLUDED.last_failure_at,
			last_success_at = EXCLUDED.last_success_at,
			opened_at = EXCLUDED.opened_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.Exec(ctx, query,
		snap.ServiceName, snap.State.String(), snap.FailureCount, snap.SuccessCount,
		snap.LastFailureAt, snap.LastSuccessAt, snap.OpenedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save breaker state %s: %w", snap.ServiceName, err)
	}
	return nil
}

func (s *PgStateStore) List(ctx context.Context) ([]*Snapshot, error) {
	rows, err := s.db.Query(ctx, selectStateColumns+` ORDER BY service_name`)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing circuit breaker states", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	snap := &Snapshot{}
	var state string
	if err := row.Scan(
		&snap.ServiceName, &state, &snap.FailureCount, &snap.SuccessCount,
		&snap.LastFailureAt, &snap.LastSuccessAt, &snap.OpenedAt,
	); err != nil {
		return nil, err
	}
	snap.State = ParseState(state)
	snap.StateName = snap.State.String()
	return snap, nil
}
