package attemptclient

import (
	"context"
	"sync/atomic"
	"time"
)

// Countdown tracks the remaining time of a timed attempt against a fixed deadline.
type Countdown struct {
	deadline time.Time
	fired    atomic.Bool
}

// NewCountdown builds a countdown for the server-issued deadline.
func NewCountdown(deadline time.Time) *Countdown {
	return &Countdown{deadline: deadline}
}

// Deadline returns the fixed deadline.
func (c *Countdown) Deadline() time.Time {
	return c.deadline
}

// Remaining returns max(0, deadline - now).
func (c *Countdown) Remaining(now time.Time) time.Duration {
	remaining := c.deadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Tick reports true exactly once, on the first call at or after the deadline.
func (c *Countdown) Tick(now time.Time) bool {
	if c.Remaining(now) > 0 {
		return false
	}
	return c.fired.CompareAndSwap(false, true)
}

// Run ticks every interval until the deadline fires or ctx ends. onExpire runs at most once.
func (c *Countdown) Run(ctx context.Context, interval time.Duration, onExpire func()) {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if c.Tick(time.Now()) {
			if onExpire != nil {
				onExpire()
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
