package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with in-memory storage. Suitable for tests and
// single-instance deployments; use RedisStore when running multiple replicas.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*Key

	now func() time.Time // overridable in tests
}

// NewMemoryStore creates a new in-memory idempotency key store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]*Key),
		now:  time.Now,
	}
}

// Get retrieves an idempotency key by its key value.
func (s *MemoryStore) Get(_ context.Context, key string) (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.keys[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return copyKey(record), nil
}

// Put saves a new idempotency key, rejecting duplicates.
func (s *MemoryStore) Put(_ context.Context, record *Key) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[record.Key]; exists {
		return ErrKeyExists
	}

	stored := copyKey(record)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.keys[record.Key] = stored
	return nil
}

// DeleteOlderThan removes keys created before now minus age.
func (s *MemoryStore) DeleteOlderThan(_ context.Context, age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-age)
	deleted := int64(0)
	for key, record := range s.keys {
		if record.CreatedAt.Before(cutoff) {
			delete(s.keys, key)
			deleted++
		}
	}
	return deleted, nil
}

// copyKey deep-copies a record so stored state can't be mutated externally.
func copyKey(record *Key) *Key {
	if record == nil {
		return nil
	}
	copied := *record
	if record.EntryID != nil {
		id := *record.EntryID
		copied.EntryID = &id
	}
	return &copied
}
