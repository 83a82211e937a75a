// Package hub wires the entity registry, number platform, group registry and
// config entry manager together and drives the registered integrations.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"integrationhub/internal/clock"
	"integrationhub/internal/config"
	"integrationhub/internal/configentry"
	"integrationhub/internal/entity"
	"integrationhub/internal/group"
	"integrationhub/pkg/integration"

	"go.uber.org/zap"
)

var (
	// ErrEntryNotFound is returned for unknown config entry ids
	ErrEntryNotFound = errors.New("config entry not found")

	// ErrEntryNotLoaded is returned when diagnostics are requested for an
	// entry that is not loaded
	ErrEntryNotLoaded = errors.New("config entry not loaded")

	// ErrDiagnosticsUnsupported is returned when the entry's integration
	// cannot produce diagnostics
	ErrDiagnosticsUnsupported = errors.New("integration does not support diagnostics")
)

// Options configures a Hub. Zero values fall back to production defaults.
type Options struct {
	Logger       *zap.Logger
	Clock        clock.Clock
	Store        entity.Store
	Integrations *integration.Registry
	Entries      []config.EntryConfig
}

// Hub owns the shared services and the loaded integrations
type Hub struct {
	logger   *zap.Logger
	entities *entity.Registry
	numbers  *entity.NumberPlatform
	groups   *group.Registry
	manager  *configentry.Manager

	integrations map[string]integration.Integration
	entries      []config.EntryConfig
}

// New builds the hub and creates every registered integration
func New(opts Options) (*Hub, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	store := opts.Store
	if store == nil {
		store = entity.NewMemoryStore()
	}
	registry := opts.Integrations
	if registry == nil {
		registry = integration.Global()
	}
	registry.SetLogger(logger)

	entities := entity.NewRegistry(store, logger)
	if err := entities.Load(); err != nil {
		return nil, fmt.Errorf("failed to load entity registry: %w", err)
	}

	h := &Hub{
		logger:       logger.Named("hub"),
		entities:     entities,
		numbers:      entity.NewNumberPlatform(entities, logger),
		groups:       group.NewRegistry(logger),
		manager:      configentry.NewManager(clk, logger),
		integrations: make(map[string]integration.Integration),
		entries:      opts.Entries,
	}
	group.DescribeBuiltinDomains(h.groups)

	ictx := integration.NewContext(logger, clk, h.entities, h.numbers, h.groups)
	created, err := registry.CreateAll(ictx)
	if err != nil {
		return nil, err
	}

	for _, in := range created {
		h.integrations[in.Domain()] = in
		h.manager.AddIntegration(in)
		if d, ok := in.(integration.GroupDescriber); ok {
			h.groups.Describe(d)
		}
		h.logger.Info("Integration created", zap.String("domain", in.Domain()))
	}

	return h, nil
}

// Start adds and sets up the configured entries. An entry whose setup could
// not be attempted is logged and skipped; setup failures are reflected in the
// entry state.
func (h *Hub) Start(ctx context.Context) error {
	h.logger.Info("Starting hub", zap.Int("entries", len(h.entries)))

	var errs []error
	for _, ec := range h.entries {
		entry := &configentry.Entry{
			Domain:  ec.Domain,
			Title:   ec.Title,
			Data:    ec.Data,
			Options: ec.Options,
		}
		if err := h.manager.Add(ctx, entry); err != nil {
			h.logger.Error("Failed to add config entry",
				zap.String("domain", ec.Domain),
				zap.String("title", ec.Title),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		h.logger.Info("Config entry added",
			zap.String("entry_id", entry.EntryID),
			zap.String("domain", entry.Domain),
			zap.String("state", string(entry.State())))
	}

	if len(errs) == len(h.entries) && len(errs) > 0 {
		return fmt.Errorf("no config entry could be added: %w", errors.Join(errs...))
	}
	return nil
}

// Stop unloads every entry
func (h *Hub) Stop(ctx context.Context) {
	h.logger.Info("Stopping hub")
	h.manager.Shutdown(ctx)
}

// Diagnostics returns the entry snapshot and the integration's redacted
// runtime data
func (h *Hub) Diagnostics(ctx context.Context, entryID string) (map[string]any, error) {
	entry, ok := h.manager.Get(entryID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	provider, ok := h.integrations[entry.Domain].(integration.DiagnosticsProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDiagnosticsUnsupported, entry.Domain)
	}
	if entry.State() != configentry.StateLoaded {
		return nil, fmt.Errorf("%w: %s is %s", ErrEntryNotLoaded, entryID, entry.State())
	}

	data, err := provider.Diagnostics(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to collect diagnostics for %s: %w", entryID, err)
	}
	return map[string]any{
		"entry": entry.Snapshot(),
		"data":  data,
	}, nil
}

// Domains returns the domains of the created integrations
func (h *Hub) Domains() []string {
	out := make([]string, 0, len(h.integrations))
	for d := range h.integrations {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Entities returns the entity registry
func (h *Hub) Entities() *entity.Registry {
	return h.entities
}

// Numbers returns the number platform
func (h *Hub) Numbers() *entity.NumberPlatform {
	return h.numbers
}

// Groups returns the group registry
func (h *Hub) Groups() *group.Registry {
	return h.groups
}

// Manager returns the config entry manager
func (h *Hub) Manager() *configentry.Manager {
	return h.manager
}
