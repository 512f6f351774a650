package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/icoforge/icoforge/internal/models"
)

// MemoryStore is the in-process backend. It mirrors the Postgres store's
// per-identity atomicity and is the default in tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.RateLimitRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.RateLimitRecord)}
}

func (s *MemoryStore) Increment(ctx context.Context, identityHash string, now time.Time, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identityHash]
	if !ok || !now.Before(rec.ExpiresAt) {
		rec = &models.RateLimitRecord{
			IdentityHash: identityHash,
			Count:        1,
			WindowStart:  now,
			ExpiresAt:    now.Add(window),
		}
		s.records[identityHash] = rec
		return rec.Count, rec.ExpiresAt, nil
	}

	rec.Count++
	return rec.Count, rec.ExpiresAt, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for hash, rec := range s.records {
		if rec.ExpiresAt.Before(now) {
			delete(s.records, hash)
			deleted++
		}
	}
	return deleted, nil
}

// Len reports the live record count; used by sweeper tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
