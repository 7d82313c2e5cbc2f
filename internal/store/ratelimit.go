package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate-limit scopes. Each provider gets an independent budget.
const (
	ScopeAI      = "ai"
	ScopeChannel = "channel"
)

// Limiter enforces a fixed-window request budget per scope, counted in the
// shared store so the budget holds across worker processes. When the store
// is unreachable it falls back to a process-local token bucket: best-effort
// during the outage, exact otherwise.
type Limiter struct {
	kv      KV
	window  time.Duration
	budgets map[string]int

	mu    sync.Mutex
	local map[string]*rate.Limiter
	now   func() time.Time
}

// NewLimiter creates a limiter. budgets maps scope → max requests per window.
// The window is counted in whole seconds, so it is clamped to at least one.
func NewLimiter(kv KV, window time.Duration, budgets map[string]int) *Limiter {
	if window < time.Second {
		window = time.Second
	}
	return &Limiter{
		kv:      kv,
		window:  window,
		budgets: budgets,
		local:   make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

// TryAcquire consumes one unit of the scope's budget. When the budget is
// exhausted it returns granted=false with the time until the window rolls
// over. Unknown scopes are unlimited.
func (l *Limiter) TryAcquire(ctx context.Context, scope string) (granted bool, retryAfter time.Duration, err error) {
	budget, ok := l.budgets[scope]
	if !ok || budget <= 0 {
		return true, 0, nil
	}

	now := l.now()
	windowIdx := now.Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("%s%s:%d", rateKeyPrefix, scope, windowIdx)

	count, err := l.kv.IncrWindow(ctx, key, l.window)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			slog.Warn("ratelimit.store_unavailable_using_local", "scope", scope)
			return l.tryAcquireLocal(scope, budget), 0, nil
		}
		return false, 0, fmt.Errorf("rate budget %s: %w", scope, err)
	}

	if count > int64(budget) {
		windowEnd := time.Unix((windowIdx+1)*int64(l.window.Seconds()), 0)
		return false, windowEnd.Sub(now), nil
	}
	return true, 0, nil
}

// Acquire waits for budget with a bounded ceiling, polling across window
// boundaries. Returns granted=false when the ceiling elapses first; the
// caller maps that to its RateLimited error.
func (l *Limiter) Acquire(ctx context.Context, scope string, maxWait time.Duration) (bool, error) {
	deadline := l.now().Add(maxWait)

	for {
		granted, retryAfter, err := l.TryAcquire(ctx, scope)
		if err != nil {
			return false, err
		}
		if granted {
			return true, nil
		}

		// Never sleep past the ceiling, and re-check at least every 250ms:
		// another worker's window may roll over before retryAfter says so.
		sleep := retryAfter
		if sleep <= 0 || sleep > 250*time.Millisecond {
			sleep = 250 * time.Millisecond
		}
		if l.now().Add(sleep).After(deadline) {
			return false, nil
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquireLocal approximates the shared budget with a per-process token
// bucket sized to the scope's per-window rate.
func (l *Limiter) tryAcquireLocal(scope string, budget int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.local[scope]
	if !ok {
		perSecond := rate.Limit(float64(budget) / l.window.Seconds())
		lim = rate.NewLimiter(perSecond, budget)
		l.local[scope] = lim
	}
	return lim.Allow()
}

// SetClock overrides the time source. Tests only.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
