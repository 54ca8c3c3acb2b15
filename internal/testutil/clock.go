package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeWallClock is a manually advanced wall clock for real-time pacing
// tests. Sleep advances the clock instead of blocking and records the
// requested duration.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeWallClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewFakeWallClock creates a clock reading start.
func NewFakeWallClock(start time.Time) *FakeWallClock {
	return &FakeWallClock{now: start}
}

// Now returns the current fake time.
func (c *FakeWallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep records d and advances the clock by it. It fails only if ctx is
// already done.
func (c *FakeWallClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Advance moves the clock forward without recording a sleep, as if the
// model had spent d computing.
func (c *FakeWallClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns every duration passed to Sleep, in order.
func (c *FakeWallClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
