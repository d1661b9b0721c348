// AngelaMos | 2026
// memory.go

package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCapacity = errors.New("rate limiter capacity exceeded")

type window struct {
	count int
	start time.Time
}

// MemoryLimiter is the single-process twin of RedisLimiter, used in
// development and tests.
type MemoryLimiter struct {
	mu      sync.Mutex
	policy  Policy
	now     func() time.Time
	windows map[string]*window
	maxKeys int
}

type MemoryOption func(*MemoryLimiter)

func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		l.now = now
	}
}

func WithMaxKeys(n int) MemoryOption {
	return func(l *MemoryLimiter) {
		l.maxKeys = n
	}
}

func NewMemoryLimiter(policy Policy, opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		policy:  policy,
		now:     time.Now,
		windows: make(map[string]*window),
		maxKeys: 10000,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLimiter) Hit(_ context.Context, key Key) (Decision, error) {
	now := l.now()
	k := key.String()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[k]
	if !ok || !now.Before(w.start.Add(l.policy.Window)) {
		if !ok && len(l.windows) >= l.maxKeys {
			l.gc(now)
			if len(l.windows) >= l.maxKeys {
				return Decision{}, ErrCapacity
			}
		}
		w = &window{start: now}
		l.windows[k] = w
	}

	w.count++

	return l.policy.decide(w.count, w.start.Add(l.policy.Window)), nil
}

func (l *MemoryLimiter) gc(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.start.Add(l.policy.Window)) {
			delete(l.windows, k)
		}
	}
}
