// Package entity provides the entity registry and the number platform that
// integrations register their adjustable controls with.
package entity

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DisabledByIntegration marks entries whose description is disabled by default
const DisabledByIntegration = "integration"

// DisabledByUser marks entries a user switched off
const DisabledByUser = "user"

// Entry is a persisted registry record for one entity
type Entry struct {
	ID             string    `cbor:"1,keyasint" json:"id"`
	EntityID       string    `cbor:"2,keyasint" json:"entity_id"`
	UniqueID       string    `cbor:"3,keyasint" json:"unique_id"`
	Domain         string    `cbor:"4,keyasint" json:"domain"`
	Platform       string    `cbor:"5,keyasint" json:"platform"`
	ConfigEntryID  string    `cbor:"6,keyasint,omitempty" json:"config_entry_id,omitempty"`
	DisabledBy     string    `cbor:"7,keyasint,omitempty" json:"disabled_by,omitempty"`
	OriginalName   string    `cbor:"8,keyasint,omitempty" json:"original_name,omitempty"`
	EntityCategory Category  `cbor:"9,keyasint,omitempty" json:"entity_category,omitempty"`
	CreatedAt      time.Time `cbor:"10,keyasint" json:"created_at"`
}

// Disabled reports whether the entity should not be loaded
func (e Entry) Disabled() bool {
	return e.DisabledBy != ""
}

// CreateOptions carries the attributes used when an entry does not exist yet
type CreateOptions struct {
	ConfigEntryID     string
	SuggestedObjectID string
	OriginalName      string
	EntityCategory    Category
	DisabledByDefault bool
}

type uniqueKey struct {
	domain   string
	platform string
	uniqueID string
}

// Registry tracks every entity ever created, keyed by entity id and by
// (domain, platform, unique id). All mutations are written through to the store.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	byUnique map[uniqueKey]string
	store    Store
	logger   *zap.Logger
	now      func() time.Time

	removeHandlers []func(Entry)
}

// NewRegistry creates an empty registry backed by store. A nil store keeps
// the registry in memory only.
func NewRegistry(store Store, logger *zap.Logger) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{
		entries:  make(map[string]*Entry),
		byUnique: make(map[uniqueKey]string),
		store:    store,
		logger:   logger.Named("entity_registry"),
		now:      time.Now,
	}
}

// Load replaces the in-memory entries with the store's contents
func (r *Registry) Load() error {
	entries, err := r.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load entity registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*Entry, len(entries))
	r.byUnique = make(map[uniqueKey]string, len(entries))
	for i := range entries {
		e := entries[i]
		r.entries[e.EntityID] = &e
		r.byUnique[uniqueKey{e.Domain, e.Platform, e.UniqueID}] = e.EntityID
	}

	r.logger.Info("Entity registry loaded", zap.Int("entries", len(entries)))
	return nil
}

// GetOrCreate returns the entry for (domain, platform, uniqueID), creating it
// with opts if it does not exist. An existing entry is never modified.
func (r *Registry) GetOrCreate(domain, platform, uniqueID string, opts CreateOptions) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := uniqueKey{domain, platform, uniqueID}
	if entityID, ok := r.byUnique[key]; ok {
		return *r.entries[entityID], nil
	}

	objectID := opts.SuggestedObjectID
	if objectID == "" {
		objectID = platform + "_" + uniqueID
	}

	entry := &Entry{
		ID:             uuid.New().String(),
		EntityID:       r.availableEntityIDLocked(domain, Slugify(objectID)),
		UniqueID:       uniqueID,
		Domain:         domain,
		Platform:       platform,
		ConfigEntryID:  opts.ConfigEntryID,
		OriginalName:   opts.OriginalName,
		EntityCategory: opts.EntityCategory,
		CreatedAt:      r.now(),
	}
	if opts.DisabledByDefault {
		entry.DisabledBy = DisabledByIntegration
	}

	r.entries[entry.EntityID] = entry
	r.byUnique[key] = entry.EntityID

	if err := r.saveLocked(); err != nil {
		delete(r.entries, entry.EntityID)
		delete(r.byUnique, key)
		return Entry{}, err
	}

	r.logger.Debug("Entity registered",
		zap.String("entity_id", entry.EntityID),
		zap.String("unique_id", uniqueID),
		zap.String("platform", platform))

	return *entry, nil
}

func (r *Registry) availableEntityIDLocked(domain, objectID string) string {
	candidate := domain + "." + objectID
	for n := 2; ; n++ {
		if _, taken := r.entries[candidate]; !taken {
			return candidate
		}
		candidate = fmt.Sprintf("%s.%s_%d", domain, objectID, n)
	}
}

// Get returns the entry for entityID
func (r *Registry) Get(entityID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[entityID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// EntityID looks up the entity id registered for a unique id
func (r *Registry) EntityID(domain, platform, uniqueID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUnique[uniqueKey{domain, platform, uniqueID}]
	return id, ok
}

// EntriesForConfigEntry returns the entries owned by a config entry, sorted by entity id
func (r *Registry) EntriesForConfigEntry(configEntryID string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Entry, 0)
	for _, e := range r.entries {
		if e.ConfigEntryID == configEntryID {
			result = append(result, *e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntityID < result[j].EntityID })
	return result
}

// Entries returns every entry sorted by entity id
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntityID < result[j].EntityID })
	return result
}

// Remove deletes an entry. Removing an unknown entity id is an error.
// Handlers registered with OnRemove run after the removal is persisted.
func (r *Registry) Remove(entityID string) error {
	r.mu.Lock()
	e, ok := r.entries[entityID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}

	key := uniqueKey{e.Domain, e.Platform, e.UniqueID}
	delete(r.entries, entityID)
	delete(r.byUnique, key)

	if err := r.saveLocked(); err != nil {
		r.entries[entityID] = e
		r.byUnique[key] = entityID
		r.mu.Unlock()
		return err
	}
	handlers := append(([]func(Entry))(nil), r.removeHandlers...)
	r.mu.Unlock()

	r.logger.Info("Entity removed from registry",
		zap.String("entity_id", entityID),
		zap.String("unique_id", e.UniqueID))

	for _, h := range handlers {
		h(*e)
	}
	return nil
}

// OnRemove registers a handler called with every entry removed from the registry
func (r *Registry) OnRemove(handler func(Entry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeHandlers = append(r.removeHandlers, handler)
}

// SetDisabled enables or disables an entity on behalf of the user
func (r *Registry) SetDisabled(entityID string, disabled bool) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[entityID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}

	previous := e.DisabledBy
	if disabled {
		e.DisabledBy = DisabledByUser
	} else {
		e.DisabledBy = ""
	}

	if err := r.saveLocked(); err != nil {
		e.DisabledBy = previous
		return Entry{}, err
	}
	return *e, nil
}

func (r *Registry) saveLocked() error {
	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].EntityID < entries[j].EntityID })

	if err := r.store.Save(entries); err != nil {
		return fmt.Errorf("failed to save entity registry: %w", err)
	}
	return nil
}
