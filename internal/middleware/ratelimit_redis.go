package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements RateLimitStore backed by Redis, so the rate
// limit holds across multiple API instances. It uses the same fixed window
// counter algorithm as the in-memory store: INCR on a per-key counter whose
// TTL is the window duration.
type RedisRateLimitStore struct {
	client *redis.Client
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// Allow checks if a request from the given key should be allowed.
// Implements the RateLimitStore interface.
//
// Fails open: if Redis is unreachable the request is allowed, since refusing
// all traffic on a cache outage is worse than briefly losing rate limiting.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	redisKey := "ratelimit:" + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	// NX keeps the TTL anchored to the first request of the window; a plain
	// EXPIRE on every hit would turn the fixed window into a sliding one.
	pipe.ExpireNX(ctx, redisKey, config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.WarnContext(ctx, "rate limit store unavailable, allowing request", "error", err)
		return true, 0
	}

	count := incr.Val()
	if count <= int64(config.RequestsPerWindow) {
		return true, 0
	}

	retryAfter := int(config.WindowDuration.Seconds())
	if ttl, err := s.client.TTL(ctx, redisKey).Result(); err == nil && ttl > 0 {
		retryAfter = int(ttl.Round(time.Second).Seconds())
	}
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter
}

// Reset clears the counter for a key. Used by tests and operational tooling.
func (s *RedisRateLimitStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, "ratelimit:"+key).Err(); err != nil {
		return fmt.Errorf("reset rate limit key %q: %w", key, err)
	}
	return nil
}
