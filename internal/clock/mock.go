package clock

import (
	"sync"
	"time"
)

// MockClock is a manually advanced Clock for tests
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*mockTimer
}

type mockTimer struct {
	clock    *MockClock
	deadline time.Time
	f        func()
	stopped  bool
	mu       sync.Mutex
}

// NewMockClock creates a MockClock starting at start
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{
		current: start,
		timers:  make([]*mockTimer, 0),
	}
}

// Now returns the mock current time
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives the time once Advance passes d
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.AfterFunc(d, func() {
		ch <- c.Now()
	})
	return ch
}

// AfterFunc schedules f to run when Advance passes d
func (c *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &mockTimer{
		clock:    c,
		deadline: c.current.Add(d),
		f:        f,
	}
	c.timers = append(c.timers, timer)
	return timer
}

// Since returns the time elapsed since t using the mock current time
func (c *MockClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Sub(t)
}

// TimerCount returns the number of armed timers. Tests poll it to know a
// goroutine has reached its wait before calling Advance.
func (c *MockClock) TimerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		t.mu.Lock()
		if !t.stopped {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// Advance moves time forward by d and fires every timer whose deadline passed
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	now := c.current.Add(d)
	c.current = now

	var due, remaining []*mockTimer
	for _, timer := range c.timers {
		timer.mu.Lock()
		switch {
		case timer.stopped:
		case !timer.deadline.After(now):
			due = append(due, timer)
		default:
			remaining = append(remaining, timer)
		}
		timer.mu.Unlock()
	}
	c.timers = remaining
	c.mu.Unlock()

	// fire outside the clock lock; callbacks may arm new timers
	for _, timer := range due {
		timer.mu.Lock()
		if timer.stopped {
			timer.mu.Unlock()
			continue
		}
		timer.stopped = true
		f := timer.f
		timer.mu.Unlock()
		f()
	}
}

// Stop keeps the timer from firing
func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

// Reset re-arms the timer d after the mock current time
func (t *mockTimer) Reset(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasActive := !t.stopped
	t.stopped = false

	t.clock.mu.Lock()
	t.deadline = t.clock.current.Add(d)
	if !wasActive {
		t.clock.timers = append(t.clock.timers, t)
	}
	t.clock.mu.Unlock()

	return wasActive
}
