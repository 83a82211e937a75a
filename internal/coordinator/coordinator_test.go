package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"integrationhub/internal/clock"
	"integrationhub/internal/configentry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	calls  atomic.Int32
	values []int
	errs   []error
}

func (s *fakeSource) update(ctx context.Context, previous int) (int, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return previous, s.errs[n]
	}
	if n < len(s.values) {
		return s.values[n], nil
	}
	return previous + 1, nil
}

func newTestCoordinator(src *fakeSource, interval time.Duration) (*Coordinator[int], *clock.MockClock) {
	clk := clock.NewMockClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return New("test", interval, src.update, clk, zap.NewNop()), clk
}

func TestFirstRefresh_Success(t *testing.T) {
	src := &fakeSource{values: []int{42}}
	c, _ := newTestCoordinator(src, 0)

	require.NoError(t, c.FirstRefresh(context.Background()))
	assert.Equal(t, 42, c.Data())
	assert.True(t, c.LastUpdateSuccess())
	assert.NoError(t, c.LastError())
}

func TestFirstRefresh_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"auth failure stays auth", configentry.ErrAuthFailed, configentry.ErrAuthFailed},
		{"generic failure becomes not ready", errors.New("boom"), configentry.ErrNotReady},
		{"update failure becomes not ready", ErrUpdateFailed, configentry.ErrNotReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{errs: []error{tt.err}}
			c, _ := newTestCoordinator(src, 0)

			err := c.FirstRefresh(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expected)
			assert.ErrorIs(t, err, tt.err)
			assert.False(t, c.LastUpdateSuccess())
		})
	}
}

func TestRefresh_FailureKeepsPreviousData(t *testing.T) {
	src := &fakeSource{values: []int{7}, errs: []error{nil, errors.New("offline")}}
	c, _ := newTestCoordinator(src, 0)

	require.NoError(t, c.Refresh(context.Background()))
	require.Error(t, c.Refresh(context.Background()))

	assert.Equal(t, 7, c.Data())
	assert.False(t, c.LastUpdateSuccess())
	assert.EqualError(t, c.LastError(), "offline")
}

func TestRequestRefresh_RunsExactlyOnce(t *testing.T) {
	src := &fakeSource{}
	c, _ := newTestCoordinator(src, 0)

	c.RequestRefresh(context.Background())
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestPolling(t *testing.T) {
	src := &fakeSource{values: []int{1}}
	c, clk := newTestCoordinator(src, 30*time.Second)

	require.NoError(t, c.FirstRefresh(context.Background()))
	assert.Equal(t, 1, clk.TimerCount())

	clk.Advance(29 * time.Second)
	assert.Equal(t, int32(1), src.calls.Load())

	clk.Advance(time.Second)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, 2, c.Data())

	clk.Advance(30 * time.Second)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestManualRefreshResetsPollTimer(t *testing.T) {
	src := &fakeSource{}
	c, clk := newTestCoordinator(src, 30*time.Second)

	require.NoError(t, c.Refresh(context.Background()))
	clk.Advance(20 * time.Second)
	require.NoError(t, c.Refresh(context.Background()))

	clk.Advance(20 * time.Second)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, 1, clk.TimerCount())

	clk.Advance(10 * time.Second)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestShutdownStopsPolling(t *testing.T) {
	src := &fakeSource{}
	c, clk := newTestCoordinator(src, 30*time.Second)

	require.NoError(t, c.Refresh(context.Background()))
	c.Shutdown()
	assert.Equal(t, 0, clk.TimerCount())

	clk.Advance(time.Minute)
	assert.Equal(t, int32(1), src.calls.Load())

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestListeners(t *testing.T) {
	src := &fakeSource{}
	c, _ := newTestCoordinator(src, 0)

	var notified atomic.Int32
	remove := c.AddListener(func() { notified.Add(1) })

	require.NoError(t, c.Refresh(context.Background()))
	c.SetData(99)
	assert.Equal(t, int32(2), notified.Load())
	assert.Equal(t, 99, c.Data())

	remove()
	c.SetData(100)
	assert.Equal(t, int32(2), notified.Load())
}

func TestListenersNotifiedOnFailure(t *testing.T) {
	src := &fakeSource{errs: []error{errors.New("down")}}
	c, _ := newTestCoordinator(src, 0)

	var notified atomic.Int32
	c.AddListener(func() { notified.Add(1) })

	require.Error(t, c.Refresh(context.Background()))
	assert.Equal(t, int32(1), notified.Load())
}

func TestModify(t *testing.T) {
	src := &fakeSource{values: []int{10}}
	c, _ := newTestCoordinator(src, 0)
	require.NoError(t, c.Refresh(context.Background()))

	var notified atomic.Int32
	c.AddListener(func() { notified.Add(1) })

	assert.False(t, c.Modify(func(v int) (int, bool) { return v, false }))
	assert.Equal(t, int32(0), notified.Load())

	assert.True(t, c.Modify(func(v int) (int, bool) { return v + 5, true }))
	assert.Equal(t, 15, c.Data())
	assert.Equal(t, int32(1), notified.Load())
}

func TestModifyWaitsForRefresh(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	update := func(ctx context.Context, previous int) (int, error) {
		close(started)
		<-release
		return 100, nil
	}
	clk := clock.NewMockClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	c := New("test", 0, update, clk, zap.NewNop())

	refreshed := make(chan error, 1)
	go func() { refreshed <- c.Refresh(context.Background()) }()
	<-started

	modified := make(chan struct{})
	go func() {
		c.Modify(func(v int) (int, bool) { return v + 1, true })
		close(modified)
	}()

	select {
	case <-modified:
		t.Fatal("modify ran during a refresh")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-refreshed)
	select {
	case <-modified:
	case <-time.After(time.Second):
		t.Fatal("modify did not run after the refresh")
	}
	assert.Equal(t, 101, c.Data(), "the change is applied on top of the fetched data")
}
