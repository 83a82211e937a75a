package configentry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"integrationhub/internal/clock"

	"go.uber.org/zap"
)

// Handler is implemented by integrations that own config entries
type Handler interface {
	Domain() string
	SetupEntry(ctx context.Context, entry *Entry) error
	UnloadEntry(ctx context.Context, entry *Entry) error
}

// RetryDelay returns how long to wait before the given setup retry
func RetryDelay(tries int) time.Duration {
	if tries > 4 {
		tries = 4
	}
	return 5 * time.Second * time.Duration(1<<tries)
}

// Manager owns every config entry and drives setup and unload
type Manager struct {
	clock  clock.Clock
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	entries  map[string]*Entry
	retries  map[string]clock.Timer
}

// NewManager creates a manager. Retry timers are scheduled on clk.
func NewManager(clk clock.Clock, logger *zap.Logger) *Manager {
	return &Manager{
		clock:    clk,
		logger:   logger.Named("config_entries"),
		handlers: make(map[string]Handler),
		entries:  make(map[string]*Entry),
		retries:  make(map[string]clock.Timer),
	}
}

// AddIntegration makes a handler available for entries of its domain
func (m *Manager) AddIntegration(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[h.Domain()] = h
}

// Add registers an entry and sets it up
func (m *Manager) Add(ctx context.Context, entry *Entry) error {
	if entry.EntryID == "" {
		entry.EntryID = NewEntryID(entry.Domain, entry.Title)
	}

	m.mu.Lock()
	if _, ok := m.handlers[entry.Domain]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("no integration for domain %s", entry.Domain)
	}
	if _, exists := m.entries[entry.EntryID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("config entry %s already exists", entry.EntryID)
	}
	entry.setState(StateNotLoaded, "")
	m.entries[entry.EntryID] = entry
	m.mu.Unlock()

	return m.Setup(ctx, entry.EntryID)
}

// Get returns an entry by id
func (m *Manager) Get(entryID string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[entryID]
	return e, ok
}

// Entries returns every entry ordered by domain then title
func (m *Manager) Entries() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Domain != result[j].Domain {
			return result[i].Domain < result[j].Domain
		}
		return result[i].Title < result[j].Title
	})
	return result
}

// Setup runs the integration's setup for an entry and records the resulting
// state. The returned error is only for setup that could not be attempted;
// integration failures are reflected in the entry state.
func (m *Manager) Setup(ctx context.Context, entryID string) error {
	entry, handler, err := m.lookup(entryID)
	if err != nil {
		return err
	}

	switch entry.State() {
	case StateNotLoaded, StateSetupRetry:
	default:
		return fmt.Errorf("config entry %s cannot be set up in state %s", entryID, entry.State())
	}

	m.cancelRetry(entryID)
	entry.setState(StateSetupInProgress, "")

	logger := m.logger.With(
		zap.String("domain", entry.Domain),
		zap.String("entry_id", entry.EntryID),
		zap.String("title", entry.Title))

	setupErr := handler.SetupEntry(ctx, entry)

	switch {
	case setupErr == nil:
		entry.mu.Lock()
		entry.tries = 0
		entry.mu.Unlock()
		entry.setState(StateLoaded, "")
		logger.Info("Config entry loaded")

	case errors.Is(setupErr, ErrAuthFailed):
		entry.SetRuntimeData(nil)
		entry.setState(StateSetupError, setupErr.Error())
		logger.Error("Config entry authentication failed", zap.Error(setupErr))

	case errors.Is(setupErr, ErrNotReady):
		entry.SetRuntimeData(nil)
		entry.setState(StateSetupRetry, setupErr.Error())
		m.scheduleRetry(entry, logger)

	default:
		entry.SetRuntimeData(nil)
		entry.setState(StateSetupError, setupErr.Error())
		logger.Error("Error setting up config entry", zap.Error(setupErr))
	}

	return nil
}

func (m *Manager) scheduleRetry(entry *Entry, logger *zap.Logger) {
	entry.mu.Lock()
	delay := RetryDelay(entry.tries)
	entry.tries++
	entry.mu.Unlock()

	logger.Warn("Config entry not ready, retrying",
		zap.String("reason", entry.Reason()),
		zap.Duration("retry_in", delay))

	entryID := entry.EntryID
	timer := m.clock.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.retries, entryID)
		m.mu.Unlock()

		if err := m.Setup(context.Background(), entryID); err != nil {
			logger.Error("Setup retry failed", zap.Error(err))
		}
	})

	m.mu.Lock()
	m.retries[entryID] = timer
	m.mu.Unlock()
}

func (m *Manager) cancelRetry(entryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.retries[entryID]; ok {
		t.Stop()
		delete(m.retries, entryID)
	}
}

// Unload tears down a loaded entry. Entries that never loaded go straight to
// not_loaded.
func (m *Manager) Unload(ctx context.Context, entryID string) error {
	entry, handler, err := m.lookup(entryID)
	if err != nil {
		return err
	}

	m.cancelRetry(entryID)

	if entry.State() != StateLoaded {
		entry.setState(StateNotLoaded, "")
		entry.SetRuntimeData(nil)
		return nil
	}

	if err := handler.UnloadEntry(ctx, entry); err != nil {
		entry.setState(StateFailedUnload, err.Error())
		return fmt.Errorf("failed to unload %s: %w", entryID, err)
	}

	entry.SetRuntimeData(nil)
	entry.setState(StateNotLoaded, "")
	m.logger.Info("Config entry unloaded",
		zap.String("domain", entry.Domain),
		zap.String("entry_id", entryID))
	return nil
}

// Reload unloads then sets up an entry
func (m *Manager) Reload(ctx context.Context, entryID string) error {
	if err := m.Unload(ctx, entryID); err != nil {
		return err
	}
	return m.Setup(ctx, entryID)
}

// Shutdown unloads every entry and stops pending retries
func (m *Manager) Shutdown(ctx context.Context) {
	for _, e := range m.Entries() {
		if err := m.Unload(ctx, e.EntryID); err != nil {
			m.logger.Error("Failed to unload config entry on shutdown",
				zap.String("entry_id", e.EntryID),
				zap.Error(err))
		}
	}
}

func (m *Manager) lookup(entryID string) (*Entry, Handler, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[entryID]
	if !ok {
		return nil, nil, fmt.Errorf("unknown config entry %s", entryID)
	}
	handler, ok := m.handlers[entry.Domain]
	if !ok {
		return nil, nil, fmt.Errorf("no integration for domain %s", entry.Domain)
	}
	return entry, handler, nil
}
