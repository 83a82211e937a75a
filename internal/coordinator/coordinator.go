// Package coordinator polls a vendor API on an interval and fans the latest
// data out to the entities that read it.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"integrationhub/internal/clock"
	"integrationhub/internal/configentry"

	"go.uber.org/zap"
)

// ErrUpdateFailed wraps a failed fetch. Update functions return it (or any
// other error) for transient failures and configentry.ErrAuthFailed for
// rejected credentials.
var ErrUpdateFailed = errors.New("update failed")

// UpdateFunc fetches fresh data. previous is the last good data, or the zero value.
type UpdateFunc[T any] func(ctx context.Context, previous T) (T, error)

// Coordinator owns the latest data for one vendor endpoint
type Coordinator[T any] struct {
	name     string
	interval time.Duration
	update   UpdateFunc[T]
	clock    clock.Clock
	logger   *zap.Logger

	mu                sync.RWMutex
	data              T
	lastUpdateSuccess bool
	lastErr           error
	timer             clock.Timer
	shutdown          bool

	refreshMu sync.Mutex

	listenersMu    sync.RWMutex
	listeners      map[int]func()
	nextListenerID int
}

// New creates a coordinator. An interval of zero disables polling.
func New[T any](name string, interval time.Duration, update UpdateFunc[T], clk clock.Clock, logger *zap.Logger) *Coordinator[T] {
	return &Coordinator[T]{
		name:      name,
		interval:  interval,
		update:    update,
		clock:     clk,
		logger:    logger.Named("coordinator").With(zap.String("coordinator", name)),
		listeners: make(map[int]func()),
	}
}

// Name returns the coordinator's name
func (c *Coordinator[T]) Name() string {
	return c.name
}

// FirstRefresh performs the initial fetch during config entry setup. An
// authentication failure is returned as configentry.ErrAuthFailed, anything
// else as configentry.ErrNotReady.
func (c *Coordinator[T]) FirstRefresh(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		if errors.Is(err, configentry.ErrAuthFailed) {
			return err
		}
		return fmt.Errorf("%s: %w: %w", c.name, configentry.ErrNotReady, err)
	}
	return nil
}

// Refresh fetches now, stores the result, notifies listeners and re-arms the
// poll timer. The fetch error is returned after being recorded.
func (c *Coordinator[T]) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.RLock()
	previous := c.data
	stopped := c.shutdown
	c.mu.RUnlock()
	if stopped {
		return nil
	}

	start := c.clock.Now()
	data, err := c.update(ctx, previous)

	c.mu.Lock()
	wasSuccess := c.lastUpdateSuccess
	if err != nil {
		c.lastUpdateSuccess = false
		c.lastErr = err
	} else {
		c.data = data
		c.lastUpdateSuccess = true
		c.lastErr = nil
	}
	c.mu.Unlock()

	switch {
	case err != nil && errors.Is(err, configentry.ErrAuthFailed):
		c.logger.Error("Authentication failed while fetching data", zap.Error(err))
	case err != nil && wasSuccess:
		c.logger.Error("Error fetching data", zap.Error(err))
	case err != nil:
		c.logger.Debug("Error fetching data", zap.Error(err))
	case !wasSuccess:
		c.logger.Info("Fetching data recovered")
	}

	c.logger.Debug("Finished fetching data",
		zap.Duration("took", c.clock.Since(start)),
		zap.Bool("success", err == nil))

	c.schedule()
	c.notify()
	return err
}

// RequestRefresh asks for an immediate refresh. The fetch error is logged by
// Refresh and not returned, matching a scheduled poll.
func (c *Coordinator[T]) RequestRefresh(ctx context.Context) {
	_ = c.Refresh(ctx)
}

// SetData stores pushed data without fetching and notifies listeners
func (c *Coordinator[T]) SetData(data T) {
	c.mu.Lock()
	c.data = data
	c.lastUpdateSuccess = true
	c.lastErr = nil
	c.mu.Unlock()

	c.schedule()
	c.notify()
}

// Modify applies fn to the current data and stores the result when fn
// reports a change. It waits for an in-flight Refresh, so a change is applied
// on top of the fetched data instead of being overwritten by it.
func (c *Coordinator[T]) Modify(fn func(current T) (T, bool)) bool {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	data, changed := fn(c.Data())
	if !changed {
		return false
	}
	c.SetData(data)
	return true
}

// Data returns the last good data
func (c *Coordinator[T]) Data() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

// LastUpdateSuccess reports whether the most recent fetch succeeded
func (c *Coordinator[T]) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdateSuccess
}

// LastError returns the most recent fetch error
func (c *Coordinator[T]) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// AddListener registers fn to run after every update. The returned func removes it.
func (c *Coordinator[T]) AddListener(fn func()) func() {
	c.listenersMu.Lock()
	id := c.nextListenerID
	c.nextListenerID++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

// Shutdown stops polling. Data stays readable.
func (c *Coordinator[T]) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shutdown = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator[T]) schedule() {
	if c.interval <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.clock.AfterFunc(c.interval, func() {
		c.RequestRefresh(context.Background())
	})
}

func (c *Coordinator[T]) notify() {
	c.listenersMu.RLock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
