package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dutywise/dutywise/internal/clock"
	"github.com/dutywise/dutywise/internal/security/domain"
)

// sweepInterval bounds how long a fully expired key may linger before
// the next Allow call reclaims it.
const sweepInterval = 10 * time.Minute

type window struct {
	stamps []time.Time
	// expiresAt is when the newest stamp ages out of its window; past
	// that point the key holds no live attempts and can be dropped.
	expiresAt time.Time
}

// MemoryLimiter keeps sliding windows in process. Suitable for tests and
// single-instance deployments; multi-instance deployments use the Redis
// limiter so counters are shared.
type MemoryLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	clock     clock.Clock
	nextSweep time.Time
}

func NewMemoryLimiter(clk clock.Clock) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		clock:   clk,
	}
}

func (m *MemoryLimiter) Allow(ctx context.Context, key string, max int, windowDur time.Duration) (*domain.LimitResult, error) {
	if key == "" {
		return nil, errors.New("rate limiter key is empty")
	}
	if max <= 0 || windowDur <= 0 {
		return nil, errors.New("rate limiter max and window must be positive")
	}

	now := m.clock.Now()
	cutoff := now.Add(-windowDur)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now)

	w := m.windows[key]
	if w == nil {
		w = &window{}
		m.windows[key] = w
	}

	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= max {
		w.stamps = kept
		return &domain.LimitResult{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   kept[0].Add(windowDur),
		}, nil
	}

	kept = append(kept, now)
	w.stamps = kept
	w.expiresAt = now.Add(windowDur)
	return &domain.LimitResult{
		Allowed:   true,
		Remaining: max - len(kept),
		ResetAt:   kept[0].Add(windowDur),
	}, nil
}

// sweep drops keys whose every recorded attempt has aged out, so the map
// does not grow without bound across distinct identifiers. Caller holds
// the mutex.
func (m *MemoryLimiter) sweep(now time.Time) {
	if now.Before(m.nextSweep) {
		return
	}
	for key, w := range m.windows {
		if now.After(w.expiresAt) {
			delete(m.windows, key)
		}
	}
	m.nextSweep = now.Add(sweepInterval)
}
