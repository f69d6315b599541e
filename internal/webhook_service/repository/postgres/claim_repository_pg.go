package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/wa_gateway/internal/platform/database"
)

const claimQuery = `
	INSERT INTO webhook_claims (external_id, claimed_at)
	VALUES ($1, $2)
	ON CONFLICT (external_id) DO NOTHING
`

const pruneClaimsQuery = `DELETE FROM webhook_claims WHERE claimed_at < $1`

// PgIdempotencyStore claims external ids with a single unique-constrained insert.
type PgIdempotencyStore struct {
	db     database.Querier
	logger *slog.Logger
	now    func() time.Time
}

func NewPgIdempotencyStore(db database.Querier, logger *slog.Logger) *PgIdempotencyStore {
	return &PgIdempotencyStore{
		db:     db,
		logger: logger.With("component", "idempotency_store_pg"),
		now:    time.Now,
	}
}

// Claim inserts externalID. The primary key resolves races: the losing
// insert affects zero rows, or surfaces 23505 if the conflict clause is
// bypassed, and both mean already claimed.
func (s *PgIdempotencyStore) Claim(ctx context.Context, externalID string) (bool, error) {
	tag, err := s.db.Exec(ctx, claimQuery, externalID, s.now().UTC())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return false, nil
		}
		s.logger.ErrorContext(ctx, "Failed to claim external id", "error", err, "external_id", externalID)
		return false, fmt.Errorf("claim %s: %w", externalID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Prune deletes claims older than the cutoff. Pruned ids can be claimed again.
func (s *PgIdempotencyStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, pruneClaimsQuery, olderThan)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to prune claims", "error", err)
		return 0, fmt.Errorf("prune claims: %w", err)
	}
	s.logger.InfoContext(ctx, "Pruned webhook claims", "count", tag.RowsAffected(), "older_than", olderThan)
	return tag.RowsAffected(), nil
}
