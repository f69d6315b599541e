package domain

import (
	"context"
	"time"
)

// IdempotencyStore is the claim ledger for inbound external ids.
//
// Claim reports true for exactly one caller per externalID, however many
// race. A store error returns false with the error; callers must treat it
// as not claimed.
type IdempotencyStore interface {
	Claim(ctx context.Context, externalID string) (bool, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}
