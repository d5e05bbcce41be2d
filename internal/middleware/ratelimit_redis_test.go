package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTestClient returns a client against a local Redis, skipping the test
// when none is reachable.
func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at localhost:6379: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRateLimitStore_Allow(t *testing.T) {
	client := redisTestClient(t)
	store := NewRedisRateLimitStore(client)
	ctx := context.Background()

	key := "test-allow-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = store.Reset(ctx, key) })

	config := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}

	for i := 0; i < 3; i++ {
		allowed, _ := store.Allow(ctx, key, config)
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, retryAfter := store.Allow(ctx, key, config)
	if allowed {
		t.Error("request over the limit should be blocked")
	}
	if retryAfter <= 0 || retryAfter > 60 {
		t.Errorf("expected retry-after within the window, got %d", retryAfter)
	}
}

func TestRedisRateLimitStore_DifferentKeysIndependent(t *testing.T) {
	client := redisTestClient(t)
	store := NewRedisRateLimitStore(client)
	ctx := context.Background()

	keyA := "test-indep-a-" + time.Now().Format("150405.000000")
	keyB := "test-indep-b-" + time.Now().Format("150405.000000")
	t.Cleanup(func() {
		_ = store.Reset(ctx, keyA)
		_ = store.Reset(ctx, keyB)
	})

	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	if allowed, _ := store.Allow(ctx, keyA, config); !allowed {
		t.Fatal("first request on key A should be allowed")
	}
	if allowed, _ := store.Allow(ctx, keyA, config); allowed {
		t.Error("second request on key A should be blocked")
	}
	if allowed, _ := store.Allow(ctx, keyB, config); !allowed {
		t.Error("key B should not share key A's counter")
	}
}

func TestRedisRateLimitStore_WindowExpiry(t *testing.T) {
	client := redisTestClient(t)
	store := NewRedisRateLimitStore(client)
	ctx := context.Background()

	key := "test-expiry-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = store.Reset(ctx, key) })

	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second}

	if allowed, _ := store.Allow(ctx, key, config); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _ := store.Allow(ctx, key, config); allowed {
		t.Fatal("second request should be blocked")
	}

	time.Sleep(1100 * time.Millisecond)

	if allowed, _ := store.Allow(ctx, key, config); !allowed {
		t.Error("request after window expiry should be allowed")
	}
}

func TestRedisRateLimitStore_FailOpen(t *testing.T) {
	// Point at a port where nothing listens.
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:1",
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	store := NewRedisRateLimitStore(client)
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	allowed, retryAfter := store.Allow(context.Background(), "fail-open", config)
	if !allowed {
		t.Error("store outage must fail open and allow the request")
	}
	if retryAfter != 0 {
		t.Errorf("expected zero retry-after on fail-open, got %d", retryAfter)
	}
}
