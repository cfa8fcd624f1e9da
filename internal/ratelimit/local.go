package ratelimit

import (
	"context"
	"sync"
	"time"
)

// fixedWindow 记录自己的窗口长度，清理时按各自窗口判断过期。
type fixedWindow struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

func (w *fixedWindow) expired(now time.Time) bool {
	return now.Sub(w.windowStart) >= w.window
}

// LocalLimiter keeps windows in process memory.
type LocalLimiter struct {
	mu      sync.Mutex
	store   map[string]*fixedWindow
	cleanup time.Time
	now     func() time.Time
}

func NewLocalLimiter(now func() time.Time) *LocalLimiter {
	if now == nil {
		now = time.Now
	}
	return &LocalLimiter{
		store:   make(map[string]*fixedWindow),
		cleanup: now().Add(time.Minute),
		now:     now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string, policy Policy) (Decision, error) {
	policy = normalizePolicy(policy)
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.cleanup) {
		for k, v := range l.store {
			if now.Sub(v.windowStart) > 2*v.window {
				delete(l.store, k)
			}
		}
		l.cleanup = now.Add(time.Minute)
	}

	entry, ok := l.store[key]
	if !ok || entry.expired(now) {
		l.store[key] = &fixedWindow{count: 1, windowStart: now, window: policy.Window}
		return Decision{Success: true, Remaining: policy.MaxRequests - 1}, nil
	}
	if entry.count >= policy.MaxRequests {
		retryAfter := policy.Window - now.Sub(entry.windowStart)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{Success: false, RetryAfter: retryAfter}, nil
	}
	entry.count++
	return Decision{Success: true, Remaining: policy.MaxRequests - entry.count}, nil
}
