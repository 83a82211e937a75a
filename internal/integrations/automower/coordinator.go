package automower

import (
	"context"
	"errors"
	"fmt"
	"time"

	"integrationhub/internal/automowerapi"
	"integrationhub/internal/clock"
	"integrationhub/internal/configentry"
	"integrationhub/internal/coordinator"

	"go.uber.org/zap"
)

const (
	// DefaultScanInterval is the poll interval; pushed events fill the gaps
	DefaultScanInterval = 5 * time.Minute

	// DefaultWorkAreaRefreshDelay is how long to wait after a work area
	// command before polling. Work area changes are not pushed.
	DefaultWorkAreaRefreshDelay = 5 * time.Second
)

// MowerData maps mower id to its latest attributes
type MowerData = map[string]*automowerapi.MowerAttributes

// Coordinator owns the mower data of one account
type Coordinator struct {
	*coordinator.Coordinator[MowerData]

	api                  automowerapi.Session
	clock                clock.Clock
	workAreaRefreshDelay time.Duration
	logger               *zap.Logger
}

// NewCoordinator creates a coordinator polling api every interval
func NewCoordinator(api automowerapi.Session, clk clock.Clock, logger *zap.Logger, interval, workAreaRefreshDelay time.Duration) *Coordinator {
	c := &Coordinator{
		api:                  api,
		clock:                clk,
		workAreaRefreshDelay: workAreaRefreshDelay,
		logger:               logger,
	}
	c.Coordinator = coordinator.New(Domain, interval, c.update, clk, logger)
	return c
}

func (c *Coordinator) update(ctx context.Context, _ MowerData) (MowerData, error) {
	data, err := c.api.GetStatus(ctx)
	if err != nil {
		if errors.Is(err, automowerapi.ErrAuthentication) {
			return nil, fmt.Errorf("%w: %w", configentry.ErrAuthFailed, err)
		}
		return nil, fmt.Errorf("%w: %w", coordinator.ErrUpdateFailed, err)
	}
	return data, nil
}

// API returns the vendor session
func (c *Coordinator) API() automowerapi.Session {
	return c.api
}

// WorkAreaRefreshDelay returns the wait between a work area command and the refresh
func (c *Coordinator) WorkAreaRefreshDelay() time.Duration {
	return c.workAreaRefreshDelay
}

// Mower returns the attributes of one mower
func (c *Coordinator) Mower(mowerID string) (*automowerapi.MowerAttributes, bool) {
	m, ok := c.Data()[mowerID]
	return m, ok && m != nil
}

// HandleEvent merges a pushed event into the data. Events are applied
// between polls, never concurrently with one.
func (c *Coordinator) HandleEvent(ev automowerapi.Event) {
	c.Modify(func(current MowerData) (MowerData, bool) {
		data, changed, err := automowerapi.ApplyEvent(current, ev)
		if err != nil {
			c.logger.Warn("Failed to apply pushed event",
				zap.String("type", ev.Type),
				zap.String("mower_id", ev.ID),
				zap.Error(err))
			return current, false
		}
		if changed {
			c.logger.Debug("Applied pushed event",
				zap.String("type", ev.Type),
				zap.String("mower_id", ev.ID))
		}
		return data, changed
	})
}
