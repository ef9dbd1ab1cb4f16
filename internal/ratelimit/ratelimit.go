package ratelimit

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
)

// Limiter defines the rate limiting interface
type Limiter interface {
	// Allow counts one attempt for key and reports whether it fits the limit
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Remaining returns the number of remaining attempts for the key
	Remaining(ctx context.Context, key string, limit int) (int, error)

	// RetryAfter returns the duration until the window for key resets
	RetryAfter(ctx context.Context, key string) (time.Duration, error)
}

// Key builds a limiter key for an action and its caller. The caller part,
// an IP address or user id, is hashed so raw addresses never reach Redis.
func Key(action, subject string) string {
	h := xxhash.NewS64(0)
	h.Write([]byte(subject))
	sum := make([]byte, 8)
	binary.LittleEndian.PutUint64(sum, h.Sum64())
	return "rl:" + action + ":" + hex.EncodeToString(sum)
}

// MemoryLimiter is an in-memory fixed window limiter
type MemoryLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

type bucket struct {
	count     int
	resetTime time.Time
}

// NewMemoryLimiter creates a new in-memory rate limiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]

	if !ok || now.After(b.resetTime) {
		l.buckets[key] = &bucket{
			count:     1,
			resetTime: now.Add(window),
		}
		return limit > 0, nil
	}

	if b.count >= limit {
		return false, nil
	}

	b.count++
	return true, nil
}

func (l *MemoryLimiter) Remaining(_ context.Context, key string, limit int) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.buckets[key]
	if !ok || time.Now().After(b.resetTime) {
		return limit, nil
	}

	return max(limit-b.count, 0), nil
}

func (l *MemoryLimiter) RetryAfter(_ context.Context, key string) (time.Duration, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := time.Now()
	b, ok := l.buckets[key]

	if !ok || now.After(b.resetTime) {
		return 0, nil
	}

	return b.resetTime.Sub(now), nil
}

// Cleanup removes expired buckets to prevent memory leaks
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, b := range l.buckets {
		if now.After(b.resetTime) {
			delete(l.buckets, key)
		}
	}
}

// StartCleanup sweeps expired buckets every interval until ctx is done
func (l *MemoryLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

var _ Limiter = (*MemoryLimiter)(nil)
