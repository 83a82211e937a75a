package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClock_AdvanceFiresDueTimers(t *testing.T) {
	clk := NewMockClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	fired := 0
	clk.AfterFunc(5*time.Second, func() { fired++ })
	clk.AfterFunc(10*time.Second, func() { fired += 10 })
	assert.Equal(t, 2, clk.TimerCount())

	clk.Advance(4 * time.Second)
	assert.Equal(t, 0, fired)

	clk.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, clk.TimerCount())

	clk.Advance(5 * time.Second)
	assert.Equal(t, 11, fired)
	assert.Equal(t, 0, clk.TimerCount())
}

func TestMockClock_StoppedTimerDoesNotFire(t *testing.T) {
	clk := NewMockClock(time.Now())

	fired := false
	timer := clk.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	clk.Advance(2 * time.Second)
	assert.False(t, fired)
	assert.Equal(t, 0, clk.TimerCount())
}

func TestMockClock_ResetRearms(t *testing.T) {
	clk := NewMockClock(time.Now())

	fired := 0
	timer := clk.AfterFunc(time.Second, func() { fired++ })
	clk.Advance(time.Second)
	require.Equal(t, 1, fired)

	timer.Reset(3 * time.Second)
	clk.Advance(2 * time.Second)
	assert.Equal(t, 1, fired)
	clk.Advance(time.Second)
	assert.Equal(t, 2, fired)
}

func TestSleepContext(t *testing.T) {
	clk := NewMockClock(time.Now())

	done := make(chan error, 1)
	go func() {
		done <- SleepContext(context.Background(), clk, 5*time.Second)
	}()

	require.Eventually(t, func() bool { return clk.TimerCount() == 1 }, time.Second, time.Millisecond)
	clk.Advance(5 * time.Second)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("SleepContext did not return after Advance")
	}
}

func TestSleepContext_Cancelled(t *testing.T) {
	clk := NewMockClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SleepContext(ctx, clk, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
