package clock

import "time"

// FakeClock is a manually driven Clock for tests. It is not safe for
// concurrent use; tests advance it from a single goroutine.
type FakeClock struct {
	current time.Time
}

// NewFakeClock pins the clock at start, normalized to UTC like the
// system clock.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{current: start.UTC()}
}

func (c *FakeClock) Now() time.Time { return c.current }

// Advance moves the clock by d; a negative d moves it backward.
func (c *FakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }
