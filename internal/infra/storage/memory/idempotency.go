package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"carchat/internal/app/middleware"
	domainchat "carchat/internal/domain/chat"
)

// IdempotencyStore stores results in memory for TTL.
type IdempotencyStore struct {
	TTL time.Duration

	mu    sync.RWMutex
	items map[string]middleware.IdempotencyRecord
}

func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{TTL: ttl, items: make(map[string]middleware.IdempotencyRecord)}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.items[key]
	if ok && s.expired(rec) {
		return middleware.IdempotencyRecord{}, false, nil
	}
	return rec, ok, nil
}

// Save refuses a live key so the losing duplicate is retried and replays the winner.
func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.items[rec.Key]; ok && !s.expired(prev) {
		return fmt.Errorf("%w: idempotency key %q already stored", domainchat.ErrTransientStore, rec.Key)
	}
	s.items[rec.Key] = rec
	return nil
}

func (s *IdempotencyStore) expired(rec middleware.IdempotencyRecord) bool {
	return s.TTL > 0 && time.Since(rec.OccurredAt) > s.TTL
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
