package ratelimit

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMemoryLimiter_Allow(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if ok, _ := limiter.Allow(ctx, "test-key", 3, time.Hour); !ok {
			t.Errorf("request %d should be allowed", i)
		}
	}

	// Fourth request should be denied (limit is 3)
	if ok, _ := limiter.Allow(ctx, "test-key", 3, time.Hour); ok {
		t.Error("fourth request should be denied")
	}

	// Different key should be allowed
	if ok, _ := limiter.Allow(ctx, "other-key", 3, time.Hour); !ok {
		t.Error("different key should be allowed")
	}
}

func TestMemoryLimiter_ZeroLimit(t *testing.T) {
	limiter := NewMemoryLimiter()

	if ok, _ := limiter.Allow(context.Background(), "test-key", 0, time.Hour); ok {
		t.Error("a zero limit should deny everything")
	}
}

func TestMemoryLimiter_Remaining(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()

	if r, _ := limiter.Remaining(ctx, "test-key", 5); r != 5 {
		t.Errorf("Remaining = %d, want 5", r)
	}

	limiter.Allow(ctx, "test-key", 5, time.Hour)
	if r, _ := limiter.Remaining(ctx, "test-key", 5); r != 4 {
		t.Errorf("Remaining = %d, want 4", r)
	}

	for i := 0; i < 6; i++ {
		limiter.Allow(ctx, "test-key", 5, time.Hour)
	}
	if r, _ := limiter.Remaining(ctx, "test-key", 5); r != 0 {
		t.Errorf("Remaining = %d, want 0", r)
	}
}

func TestMemoryLimiter_RetryAfter(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()

	if r, _ := limiter.RetryAfter(ctx, "test-key"); r != 0 {
		t.Errorf("RetryAfter = %v, want 0", r)
	}

	limiter.Allow(ctx, "test-key", 5, time.Hour)
	retryAfter, _ := limiter.RetryAfter(ctx, "test-key")
	if retryAfter <= 0 || retryAfter > time.Hour {
		t.Errorf("RetryAfter = %v, want > 0 and <= 1h", retryAfter)
	}
}

func TestMemoryLimiter_WindowReset(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	window := 50 * time.Millisecond

	limiter.Allow(ctx, "test-key", 1, window)
	if ok, _ := limiter.Allow(ctx, "test-key", 1, window); ok {
		t.Error("should be rate limited")
	}

	time.Sleep(60 * time.Millisecond)

	if ok, _ := limiter.Allow(ctx, "test-key", 1, window); !ok {
		t.Error("should be allowed after window reset")
	}
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()

	limiter.Allow(ctx, "key1", 1, 10*time.Millisecond)
	limiter.Allow(ctx, "key2", 1, time.Hour)

	time.Sleep(20 * time.Millisecond)
	limiter.Cleanup()

	limiter.mu.RLock()
	_, has1 := limiter.buckets["key1"]
	_, has2 := limiter.buckets["key2"]
	limiter.mu.RUnlock()

	if has1 {
		t.Error("key1 should have been cleaned up")
	}
	if !has2 {
		t.Error("key2 should still be tracked")
	}
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	limit := 100

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for i := 0; i < limit*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := limiter.Allow(ctx, "concurrent-key", limit, time.Hour); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Errorf("allowed %d requests, want %d", allowed, limit)
	}
}

func TestKey(t *testing.T) {
	a := Key("submit", "203.0.113.7")
	b := Key("submit", "203.0.113.7")
	c := Key("submit", "203.0.113.8")
	d := Key("tag", "203.0.113.7")

	if a != b {
		t.Error("keys should be stable")
	}
	if a == c || a == d {
		t.Error("keys should differ by subject and action")
	}
	if !strings.HasPrefix(a, "rl:submit:") || strings.Contains(a, "203.0.113.7") {
		t.Errorf("unexpected key %q", a)
	}
}

func TestRedisLimiter(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	limiter, err := NewRedisLimiter(url)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer limiter.Close()

	ctx := context.Background()
	if err := limiter.Ping(ctx); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	key := Key("test", time.Now().String())
	for i := 1; i <= 2; i++ {
		if ok, err := limiter.Allow(ctx, key, 2, time.Minute); err != nil || !ok {
			t.Fatalf("request %d should be allowed, got %v %v", i, ok, err)
		}
		// The window must carry an expiry from the first hit on.
		if ttl, err := limiter.rdb.PTTL(ctx, key).Result(); err != nil || ttl <= 0 || ttl > time.Minute {
			t.Fatalf("request %d: PTTL = %v, %v; want within the window", i, ttl, err)
		}
	}
	if r, _ := limiter.Remaining(ctx, key, 2); r != 0 {
		t.Errorf("Remaining after two hits = %d, want 0", r)
	}
	if ok, _ := limiter.Allow(ctx, key, 2, time.Minute); ok {
		t.Error("third request should be denied")
	}
	if r, _ := limiter.Remaining(ctx, key, 2); r != 0 {
		t.Errorf("Remaining = %d, want 0", r)
	}
	if d, _ := limiter.RetryAfter(ctx, key); d <= 0 || d > time.Minute {
		t.Errorf("RetryAfter = %v, want within the window", d)
	}
}
