package entity

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// State is a point-in-time view of a loaded number entity
type State struct {
	EntityID      string   `json:"entity_id"`
	UniqueID      string   `json:"unique_id"`
	Name          string   `json:"name"`
	DeviceName    string   `json:"device_name"`
	ConfigEntryID string   `json:"config_entry_id"`
	Value         *float64 `json:"value"`
	Available     bool     `json:"available"`
	Min           float64  `json:"min"`
	Max           float64  `json:"max"`
	Step          float64  `json:"step"`
	Unit          string   `json:"unit,omitempty"`
	Category      Category `json:"entity_category,omitempty"`

	// Removed is set on the last update of an entity being unloaded
	Removed bool `json:"-"`
	// Deleted is set with Removed when the registry entry itself is gone
	Deleted bool `json:"-"`
}

// StateHandler receives state updates from the platform
type StateHandler func(State)

type loadedNumber struct {
	entry  Entry
	number Number
}

// NumberPlatform holds the loaded number entities and serves set_value calls
type NumberPlatform struct {
	registry *Registry
	logger   *zap.Logger

	mu       sync.RWMutex
	entities map[string]*loadedNumber

	subsMu    sync.RWMutex
	subs      map[int]StateHandler
	nextSubID int
}

// NewNumberPlatform creates a platform that registers entities in registry.
// Number entries removed from the registry are unloaded and announced as deleted.
func NewNumberPlatform(registry *Registry, logger *zap.Logger) *NumberPlatform {
	p := &NumberPlatform{
		registry: registry,
		logger:   logger.Named("number"),
		entities: make(map[string]*loadedNumber),
		subs:     make(map[int]StateHandler),
	}
	registry.OnRemove(p.handleRegistryRemove)
	return p
}

// Add registers numbers for a config entry and loads the enabled ones.
// It returns the entity ids that were loaded.
func (p *NumberPlatform) Add(configEntryID, platform string, numbers []Number) ([]string, error) {
	loaded := make([]string, 0, len(numbers))

	for _, n := range numbers {
		desc := n.Description()
		entry, err := p.registry.GetOrCreate(NumberDomain, platform, n.UniqueID(), CreateOptions{
			ConfigEntryID:     configEntryID,
			SuggestedObjectID: n.DeviceName() + " " + n.Name(),
			OriginalName:      n.Name(),
			EntityCategory:    desc.Category,
			DisabledByDefault: desc.DisabledByDefault,
		})
		if err != nil {
			return loaded, fmt.Errorf("failed to register %s: %w", n.UniqueID(), err)
		}

		if entry.Disabled() {
			p.logger.Debug("Skipping disabled entity",
				zap.String("entity_id", entry.EntityID),
				zap.String("disabled_by", entry.DisabledBy))
			continue
		}

		p.mu.Lock()
		p.entities[entry.EntityID] = &loadedNumber{entry: entry, number: n}
		p.mu.Unlock()

		loaded = append(loaded, entry.EntityID)
	}

	p.logger.Info("Number entities added",
		zap.String("platform", platform),
		zap.String("config_entry_id", configEntryID),
		zap.Int("loaded", len(loaded)),
		zap.Int("total", len(numbers)))

	for _, id := range loaded {
		p.notify(id)
	}
	return loaded, nil
}

// SetValue validates value against the entity's range and forwards it
func (p *NumberPlatform) SetValue(ctx context.Context, entityID string, value float64) error {
	p.mu.RLock()
	ln, ok := p.entities[entityID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}

	lo, hi := ln.number.Description().Range()
	if value < lo || value > hi {
		return fmt.Errorf("%w: %v for %s is outside %v..%v", ErrInvalidValue, value, entityID, lo, hi)
	}

	p.logger.Debug("Setting number value",
		zap.String("entity_id", entityID),
		zap.Float64("value", value))

	if err := ln.number.SetValue(ctx, value); err != nil {
		return err
	}

	p.notify(entityID)
	return nil
}

// State returns the current state of a loaded entity
func (p *NumberPlatform) State(entityID string) (State, bool) {
	p.mu.RLock()
	ln, ok := p.entities[entityID]
	p.mu.RUnlock()
	if !ok {
		return State{}, false
	}
	return stateOf(ln), true
}

// States returns every loaded entity's state sorted by entity id
func (p *NumberPlatform) States() []State {
	p.mu.RLock()
	loaded := make([]*loadedNumber, 0, len(p.entities))
	for _, ln := range p.entities {
		loaded = append(loaded, ln)
	}
	p.mu.RUnlock()

	states := make([]State, 0, len(loaded))
	for _, ln := range loaded {
		states = append(states, stateOf(ln))
	}
	sort.Slice(states, func(i, j int) bool { return states[i].EntityID < states[j].EntityID })
	return states
}

// RefreshStates publishes the current state of every entity of a config entry.
// Integrations call it when their coordinator has new data.
func (p *NumberPlatform) RefreshStates(configEntryID string) {
	for _, id := range p.entityIDs(configEntryID) {
		p.notify(id)
	}
}

// RemoveConfigEntry unloads every entity owned by a config entry and sends
// subscribers a final unavailable state for each. Registry entries are kept.
func (p *NumberPlatform) RemoveConfigEntry(configEntryID string) int {
	ids := p.entityIDs(configEntryID)

	p.mu.Lock()
	removed := make([]State, 0, len(ids))
	for _, id := range ids {
		if ln, ok := p.entities[id]; ok {
			st := stateOf(ln)
			st.Available = false
			st.Removed = true
			removed = append(removed, st)
		}
		delete(p.entities, id)
	}
	p.mu.Unlock()

	for _, st := range removed {
		p.publish(st)
	}
	return len(ids)
}

// Subscribe registers a handler for state updates. The returned func unsubscribes.
func (p *NumberPlatform) Subscribe(handler StateHandler) func() {
	p.subsMu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subs[id] = handler
	p.subsMu.Unlock()

	return func() {
		p.subsMu.Lock()
		delete(p.subs, id)
		p.subsMu.Unlock()
	}
}

func (p *NumberPlatform) handleRegistryRemove(e Entry) {
	if e.Domain != NumberDomain {
		return
	}

	p.mu.Lock()
	delete(p.entities, e.EntityID)
	p.mu.Unlock()

	p.publish(State{
		EntityID:      e.EntityID,
		UniqueID:      e.UniqueID,
		Name:          e.OriginalName,
		ConfigEntryID: e.ConfigEntryID,
		Category:      e.EntityCategory,
		Removed:       true,
		Deleted:       true,
	})
}

func (p *NumberPlatform) entityIDs(configEntryID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0)
	for id, ln := range p.entities {
		if ln.entry.ConfigEntryID == configEntryID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (p *NumberPlatform) notify(entityID string) {
	st, ok := p.State(entityID)
	if !ok {
		return
	}
	p.publish(st)
}

func (p *NumberPlatform) publish(st State) {
	p.subsMu.RLock()
	handlers := make([]StateHandler, 0, len(p.subs))
	for _, h := range p.subs {
		handlers = append(handlers, h)
	}
	p.subsMu.RUnlock()

	for _, h := range handlers {
		h(st)
	}
}

func stateOf(ln *loadedNumber) State {
	desc := ln.number.Description()
	lo, hi := desc.Range()

	st := State{
		EntityID:      ln.entry.EntityID,
		UniqueID:      ln.entry.UniqueID,
		Name:          ln.number.DeviceName() + " " + ln.number.Name(),
		DeviceName:    ln.number.DeviceName(),
		ConfigEntryID: ln.entry.ConfigEntryID,
		Available:     ln.number.Available(),
		Min:           lo,
		Max:           hi,
		Step:          desc.StepOrDefault(),
		Unit:          desc.Unit,
		Category:      desc.Category,
	}
	if st.Available {
		if v, ok := ln.number.Value(); ok {
			st.Value = &v
		}
	}
	return st
}
