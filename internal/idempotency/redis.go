package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces idempotency records in Redis.
const keyPrefix = "idempotency:"

// RedisStore implements Store backed by Redis, so replay protection holds
// across multiple API instances. Records are stored as JSON values with a TTL
// equal to the retention window, which makes DeleteOlderThan mostly a no-op:
// Redis expires records on its own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed idempotency store. Records expire
// after ttl; a non-positive ttl falls back to DefaultExpiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultExpiry
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Get retrieves an idempotency key by its key value.
func (s *RedisStore) Get(ctx context.Context, key string) (*Key, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}

	var record Key
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &record, nil
}

// Put saves a new idempotency key. SET NX rejects duplicates atomically even
// when two replicas race on the same key.
func (s *RedisStore) Put(ctx context.Context, record *Key) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	stored := *record
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, keyPrefix+record.Key, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("store idempotency key: %w", err)
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}

// DeleteOlderThan is satisfied by Redis TTL expiry; nothing to scan.
func (s *RedisStore) DeleteOlderThan(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}
