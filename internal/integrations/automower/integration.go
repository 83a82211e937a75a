// Package automower integrates robotic lawn mowers: cutting height controls
// for the mower and for each of its work areas.
package automower

import (
	"context"
	"errors"
	"fmt"

	"integrationhub/internal/automowerapi"
	"integrationhub/internal/clock"
	"integrationhub/internal/configentry"
	"integrationhub/internal/diagnostics"
	"integrationhub/internal/entity"
	"integrationhub/pkg/integration"

	"go.uber.org/zap"
)

// Domain is the integration's domain and entity platform name
const Domain = "husqvarna_automower"

// Config entry keys
const (
	ConfKeyToken            = "token"
	ConfKeyAPIKey           = "api_key"
	ConfKeyBaseURL          = "base_url"
	ConfKeyStreamURL        = "stream_url"
	OptScanInterval         = "scan_interval"
	OptWorkAreaRefreshDelay = "work_area_refresh_delay"
)

// diagnosticsRedact lists attribute keys hidden from diagnostics
var diagnosticsRedact = []string{"serial_number", "name"}

// SessionFactory builds the vendor session for a config entry
type SessionFactory func(entry *configentry.Entry, logger *zap.Logger) (automowerapi.Session, error)

// NewRESTSession creates the cloud client from the entry's credentials
func NewRESTSession(entry *configentry.Entry, logger *zap.Logger) (automowerapi.Session, error) {
	token := entry.String(ConfKeyToken)
	if token == "" {
		return nil, fmt.Errorf("%w: no token configured", configentry.ErrAuthFailed)
	}

	var opts []automowerapi.Option
	if u := entry.String(ConfKeyBaseURL); u != "" {
		opts = append(opts, automowerapi.WithBaseURL(u))
	}
	if u := entry.String(ConfKeyStreamURL); u != "" {
		opts = append(opts, automowerapi.WithStreamURL(u))
	}
	return automowerapi.NewClient(token, entry.String(ConfKeyAPIKey), logger, opts...), nil
}

// RuntimeData is stored on a loaded config entry
type RuntimeData struct {
	Coordinator *Coordinator
	EntityIDs   []string

	removeListener func()
	cancelStream   context.CancelFunc
	streamDone     chan struct{}
}

// Integration sets up mower config entries
type Integration struct {
	logger     *zap.Logger
	clock      clock.Clock
	entities   *entity.Registry
	numbers    *entity.NumberPlatform
	newSession SessionFactory
}

// New creates the integration. newSession defaults to NewRESTSession.
func New(ctx *integration.Context, newSession SessionFactory) *Integration {
	if newSession == nil {
		newSession = NewRESTSession
	}
	return &Integration{
		logger:     ctx.Logger.Named(Domain),
		clock:      ctx.Clock,
		entities:   ctx.Entities,
		numbers:    ctx.Numbers,
		newSession: newSession,
	}
}

func init() {
	integration.Register(integration.Info{
		Domain:      Domain,
		Description: "Robotic mower cutting height controls",
		Priority:    integration.PriorityDefault,
		Factory: func(ctx *integration.Context) (integration.Integration, error) {
			return New(ctx, nil), nil
		},
	})
}

// Domain returns the integration domain
func (i *Integration) Domain() string {
	return Domain
}

// SetupEntry fetches the mowers, creates their number entities and starts
// listening for pushed updates
func (i *Integration) SetupEntry(ctx context.Context, entry *configentry.Entry) error {
	logger := i.logger.With(zap.String("entry_id", entry.EntryID), zap.String("title", entry.Title))

	session, err := i.newSession(entry, logger)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	c := NewCoordinator(session, i.clock, logger,
		entry.Duration(OptScanInterval, DefaultScanInterval),
		entry.Duration(OptWorkAreaRefreshDelay, DefaultWorkAreaRefreshDelay))

	if err := c.FirstRefresh(ctx); err != nil {
		c.Shutdown()
		return err
	}

	ids, err := setupNumbers(entry.EntryID, c, i.entities, i.numbers, logger)
	if err != nil {
		c.Shutdown()
		i.numbers.RemoveConfigEntry(entry.EntryID)
		return fmt.Errorf("failed to set up number entities: %w", err)
	}

	rd := &RuntimeData{
		Coordinator: c,
		EntityIDs:   ids,
		removeListener: c.AddListener(func() {
			i.numbers.RefreshStates(entry.EntryID)
		}),
	}

	if push, ok := session.(automowerapi.PushSession); ok {
		streamCtx, cancel := context.WithCancel(context.Background())
		rd.cancelStream = cancel
		rd.streamDone = make(chan struct{})
		go func() {
			defer close(rd.streamDone)
			if err := push.Listen(streamCtx, c.HandleEvent); err != nil {
				logger.Error("Event stream stopped", zap.Error(err))
			}
		}()
	}

	entry.SetRuntimeData(rd)
	logger.Info("Mower entry set up",
		zap.Int("mowers", len(c.Data())),
		zap.Int("entities", len(ids)))
	return nil
}

// UnloadEntry stops the stream and polling and unloads the entry's entities
func (i *Integration) UnloadEntry(ctx context.Context, entry *configentry.Entry) error {
	rd, ok := entry.RuntimeData().(*RuntimeData)
	if !ok {
		return nil
	}

	if rd.cancelStream != nil {
		rd.cancelStream()
		select {
		case <-rd.streamDone:
		case <-ctx.Done():
			return fmt.Errorf("failed to stop event stream: %w", ctx.Err())
		}
	}

	rd.removeListener()
	rd.Coordinator.Shutdown()
	removed := i.numbers.RemoveConfigEntry(entry.EntryID)

	i.logger.Info("Mower entry unloaded",
		zap.String("entry_id", entry.EntryID),
		zap.Int("entities", removed))
	return nil
}

// Diagnostics returns the entry's mower data with identifying fields redacted
func (i *Integration) Diagnostics(ctx context.Context, entry *configentry.Entry) (map[string]any, error) {
	rd, ok := entry.RuntimeData().(*RuntimeData)
	if !ok {
		return nil, errors.New("entry is not loaded")
	}

	mowers, err := toMap(rd.Coordinator.Data())
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"mowers":              diagnostics.Redact(mowers, diagnosticsRedact),
		"last_update_success": rd.Coordinator.LastUpdateSuccess(),
	}, nil
}
