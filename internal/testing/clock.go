package testing

import (
	"sync"
	"time"
)

// Clock is a manually advanced time source for jobs and repositories under test
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at now, truncated to whole seconds so it
// round-trips through unix-second columns unchanged.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now.Truncate(time.Second)}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
