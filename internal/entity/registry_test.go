package entity

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Test Mower 1 Cutting height", "test_mower_1_cutting_height"},
		{"Test Mower 1 Front lawn cutting height", "test_mower_1_front_lawn_cutting_height"},
		{"  leading and trailing  ", "leading_and_trailing"},
		{"Back-Yard / Shed", "back_yard_shed"},
		{"Vorgärten cutting height", "vorgarten_cutting_height"},
		{"Äpfelwiese", "apfelwiese"},
		{"Пасека", "paseka"},
		{"snake_case__name", "snake_case_name"},
		{"!!!", "unnamed"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestRegistry_NonLatinNamesDoNotCollide(t *testing.T) {
	r := NewRegistry(NewMemoryStore(), zap.NewNop())

	first, err := r.GetOrCreate(NumberDomain, "automower", "mower_1_cutting_height", CreateOptions{
		SuggestedObjectID: "Пасека cutting height",
	})
	require.NoError(t, err)
	second, err := r.GetOrCreate(NumberDomain, "automower", "mower_2_cutting_height", CreateOptions{
		SuggestedObjectID: "Сад cutting height",
	})
	require.NoError(t, err)

	assert.Equal(t, "number.paseka_cutting_height", first.EntityID)
	assert.Equal(t, "number.sad_cutting_height", second.EntityID)
}

func TestRegistry_GetOrCreateIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry(store, zap.NewNop())

	first, err := reg.GetOrCreate("number", "husqvarna_automower", "abc_cutting_height", CreateOptions{
		ConfigEntryID:     "entry1",
		SuggestedObjectID: "Test Mower 1 Cutting height",
		DisabledByDefault: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "number.test_mower_1_cutting_height", first.EntityID)
	assert.Equal(t, DisabledByIntegration, first.DisabledBy)
	assert.NotEmpty(t, first.ID)

	second, err := reg.GetOrCreate("number", "husqvarna_automower", "abc_cutting_height", CreateOptions{
		ConfigEntryID:     "entry1",
		SuggestedObjectID: "Renamed",
	})
	require.NoError(t, err)
	assert.Equal(t, first, second, "existing entry must be returned unchanged")
	assert.Equal(t, 1, store.Saves())
}

func TestRegistry_EntityIDCollision(t *testing.T) {
	reg := NewRegistry(nil, zap.NewNop())

	a, err := reg.GetOrCreate("number", "p", "a", CreateOptions{SuggestedObjectID: "Lawn"})
	require.NoError(t, err)
	b, err := reg.GetOrCreate("number", "p", "b", CreateOptions{SuggestedObjectID: "Lawn"})
	require.NoError(t, err)
	c, err := reg.GetOrCreate("number", "p", "c", CreateOptions{SuggestedObjectID: "Lawn"})
	require.NoError(t, err)

	assert.Equal(t, "number.lawn", a.EntityID)
	assert.Equal(t, "number.lawn_2", b.EntityID)
	assert.Equal(t, "number.lawn_3", c.EntityID)
}

func TestRegistry_RemoveAndEntriesForConfigEntry(t *testing.T) {
	reg := NewRegistry(nil, zap.NewNop())

	for _, uid := range []string{"x_1", "x_2"} {
		_, err := reg.GetOrCreate("number", "p", uid, CreateOptions{ConfigEntryID: "e1", SuggestedObjectID: uid})
		require.NoError(t, err)
	}
	_, err := reg.GetOrCreate("number", "p", "other", CreateOptions{ConfigEntryID: "e2", SuggestedObjectID: "other"})
	require.NoError(t, err)

	entries := reg.EntriesForConfigEntry("e1")
	require.Len(t, entries, 2)
	assert.Equal(t, "number.x_1", entries[0].EntityID)

	require.NoError(t, reg.Remove("number.x_1"))
	assert.Len(t, reg.EntriesForConfigEntry("e1"), 1)
	_, ok := reg.EntityID("number", "p", "x_1")
	assert.False(t, ok)

	err = reg.Remove("number.x_1")
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

// flakyStore fails Save while failing is set
type flakyStore struct {
	*MemoryStore
	failing bool
}

func (s *flakyStore) Save(entries []Entry) error {
	if s.failing {
		return errors.New("disk full")
	}
	return s.MemoryStore.Save(entries)
}

func TestRegistry_RemoveRollsBackOnSaveError(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	r := NewRegistry(store, zap.NewNop())

	entry, err := r.GetOrCreate(NumberDomain, "automower", "mower_1_cutting_height", CreateOptions{
		ConfigEntryID:     "entry-1",
		SuggestedObjectID: "Mower cutting height",
	})
	require.NoError(t, err)

	store.failing = true
	err = r.Remove(entry.EntityID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	got, ok := r.Get(entry.EntityID)
	require.True(t, ok, "entry stays in memory when it could not be removed from disk")
	assert.Equal(t, entry, got)
	entityID, ok := r.EntityID(NumberDomain, "automower", "mower_1_cutting_height")
	require.True(t, ok)
	assert.Equal(t, entry.EntityID, entityID)
	assert.Len(t, r.EntriesForConfigEntry("entry-1"), 1)

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, persisted, 1)

	store.failing = false
	require.NoError(t, r.Remove(entry.EntityID))
	_, ok = r.Get(entry.EntityID)
	assert.False(t, ok)
}

func TestRegistry_SetDisabled(t *testing.T) {
	reg := NewRegistry(nil, zap.NewNop())
	e, err := reg.GetOrCreate("number", "p", "u", CreateOptions{SuggestedObjectID: "u", DisabledByDefault: true})
	require.NoError(t, err)
	require.True(t, e.Disabled())

	e, err = reg.SetDisabled(e.EntityID, false)
	require.NoError(t, err)
	assert.False(t, e.Disabled())

	e, err = reg.SetDisabled(e.EntityID, true)
	require.NoError(t, err)
	assert.Equal(t, DisabledByUser, e.DisabledBy)

	_, err = reg.SetDisabled("number.missing", false)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestFileStore_PersistsAcrossRegistries(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".storage", "entity_registry.cbor")

	reg := NewRegistry(NewFileStore(path), zap.NewNop())
	require.NoError(t, reg.Load())
	created, err := reg.GetOrCreate("number", "husqvarna_automower", "abc_0_cutting_height_work_area", CreateOptions{
		ConfigEntryID:     "entry1",
		SuggestedObjectID: "Test Mower 1 My lawn cutting height",
		EntityCategory:    CategoryConfig,
	})
	require.NoError(t, err)

	reloaded := NewRegistry(NewFileStore(path), zap.NewNop())
	require.NoError(t, reloaded.Load())

	got, ok := reloaded.Get(created.EntityID)
	require.True(t, ok)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.UniqueID, got.UniqueID)
	assert.Equal(t, CategoryConfig, got.EntityCategory)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

	id, ok := reloaded.EntityID("number", "husqvarna_automower", "abc_0_cutting_height_work_area")
	require.True(t, ok)
	assert.Equal(t, created.EntityID, id)
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "none.cbor"))
	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
