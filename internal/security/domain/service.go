package domain

import (
	"context"
	"time"
)

// Limiter is the sliding-window counter. Check-and-record is one atomic
// operation per (identifier, action) key.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (*LimitResult, error)
}

type Service interface {
	// Check consults the deny-list, then atomically checks and records an
	// attempt against the action's sliding window. A denied result
	// carries the window reset time.
	Check(ctx context.Context, identifier, action, ip string) (CheckResult, error)
	// Log appends a security event unconditionally.
	Log(ctx context.Context, event SecurityEvent) error
	// DetectSuspicious inspects the last 24 hours of events for an
	// identifier.
	DetectSuspicious(ctx context.Context, identifier string) (SuspicionReport, error)
	BlockIP(ctx context.Context, ip, reason string, ttl time.Duration) error
	IsBlocked(ctx context.Context, ip string) (bool, error)
}
