// Package clock abstracts time so delays and schedules can be driven by tests.
// Production code uses RealClock; tests use MockClock and call Advance.
package clock

import (
	"context"
	"time"
)

// Clock is the time source used by coordinators, setup retries and write delays.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// After sends the current time on the returned channel once d has elapsed
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f in its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer

	// Since returns the time elapsed since t
	Since(t time.Time) time.Duration
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop cancels the call. It returns false if the timer already fired or was stopped.
	Stop() bool

	// Reset re-arms the timer to fire after d.
	Reset(d time.Duration) bool
}

// SleepContext blocks for d on c, returning early with ctx.Err() if ctx is done.
func SleepContext(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-c.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RealClock implements Clock with the time package
type RealClock struct{}

type realTimer struct {
	timer *time.Timer
}

// NewRealClock creates a new RealClock
func NewRealClock() *RealClock {
	return &RealClock{}
}

// Now returns the current time
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// After waits for d and then sends the current time
func (c *RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// AfterFunc waits for d and then calls f
func (c *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return &realTimer{timer: time.AfterFunc(d, f)}
}

// Since returns the time elapsed since t
func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Stop prevents the timer from firing
func (t *realTimer) Stop() bool {
	return t.timer.Stop()
}

// Reset changes the timer to expire after d
func (t *realTimer) Reset(d time.Duration) bool {
	return t.timer.Reset(d)
}
