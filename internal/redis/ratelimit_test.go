package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRateLimiter(t *testing.T, config RateLimitConfig) (*RateLimiter, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}
	limiter := NewRateLimiter(client, zap.NewNop(), config)

	return limiter, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	limiter, cleanup := setupTestRateLimiter(t, RateLimitConfig{
		Limit:  5,
		Window: time.Minute,
	})
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "user:abc")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	limiter, cleanup := setupTestRateLimiter(t, RateLimitConfig{
		Limit:  3,
		Window: time.Minute,
	})
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := limiter.Allow(ctx, "user:abc"); err != nil {
			t.Fatalf("allow: %v", err)
		}
	}

	result, err := limiter.Allow(ctx, "user:abc")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if result.Allowed {
		t.Fatal("fourth request should be blocked")
	}
	if result.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", result.Remaining)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	limiter, cleanup := setupTestRateLimiter(t, RateLimitConfig{
		Limit:  1,
		Window: time.Minute,
	})
	defer cleanup()

	ctx := context.Background()

	if _, err := limiter.Allow(ctx, "user:abc"); err != nil {
		t.Fatalf("allow: %v", err)
	}

	result, err := limiter.Allow(ctx, "user:def")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !result.Allowed {
		t.Fatal("different key should have its own budget")
	}
}

func TestRateLimiter_AllowN(t *testing.T) {
	limiter, cleanup := setupTestRateLimiter(t, RateLimitConfig{
		Limit:  10,
		Window: time.Minute,
	})
	defer cleanup()

	ctx := context.Background()

	result, err := limiter.AllowN(ctx, "user:abc", 8)
	if err != nil {
		t.Fatalf("allow n: %v", err)
	}
	if !result.Allowed {
		t.Fatal("batch of 8 should be allowed")
	}

	result, err = limiter.AllowN(ctx, "user:abc", 5)
	if err != nil {
		t.Fatalf("allow n: %v", err)
	}
	if result.Allowed {
		t.Fatal("batch of 5 should exceed the remaining budget")
	}
}
