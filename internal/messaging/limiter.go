package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiter admits or rejects one send. It returns ErrRateLimited when
// the caller must back off; any other error is an infrastructure failure.
type RateLimiter interface {
	Allow(ctx context.Context) error
}

// FixedWindowLimiter admits at most limit sends per window inside one
// process. The window restarts on the first call made at least one window
// length after the previous start.
type FixedWindowLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int
	now         func() time.Time
}

func NewFixedWindowLimiter(limit int, window time.Duration) *FixedWindowLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &FixedWindowLimiter{limit: limit, window: window, now: time.Now}
}

func (l *FixedWindowLimiter) Allow(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}
	if l.count >= l.limit {
		return ErrRateLimited
	}
	l.count++
	return nil
}

// WindowCounter increments a counter scoped to the current window and
// returns its new value. The Redis rate limit cache implements it.
type WindowCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// SharedLimiter applies the fixed-window rule across processes through a
// WindowCounter.
type SharedLimiter struct {
	counter WindowCounter
	key     string
	limit   int64
	window  time.Duration
}

func NewSharedLimiter(counter WindowCounter, key string, limit int, window time.Duration) *SharedLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &SharedLimiter{counter: counter, key: key, limit: int64(limit), window: window}
}

func (l *SharedLimiter) Allow(ctx context.Context) error {
	count, err := l.counter.IncrementWindow(ctx, l.key, l.window)
	if err != nil {
		return fmt.Errorf("rate limiter unavailable: %w", err)
	}
	if count > l.limit {
		return ErrRateLimited
	}
	return nil
}
