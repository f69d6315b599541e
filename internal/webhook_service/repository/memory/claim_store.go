package memory

import (
	"context"
	"sync"
	"time"
)

// IdempotencyStore is a process-local claim ledger for tests and single-node runs.
type IdempotencyStore struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{claims: make(map[string]time.Time), now: time.Now}
}

func (s *IdempotencyStore) Claim(_ context.Context, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.claims[externalID]; taken {
		return false, nil
	}
	s.claims[externalID] = s.now()
	return true, nil
}

func (s *IdempotencyStore) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, at := range s.claims {
		if at.Before(olderThan) {
			delete(s.claims, id)
			n++
		}
	}
	return n, nil
}
