package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"integrationhub/internal/clock"
	"integrationhub/internal/config"
	"integrationhub/internal/configentry"
	"integrationhub/internal/entity"
	"integrationhub/internal/group"
	"integrationhub/pkg/integration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNumber struct {
	uniqueID string
	value    float64
}

func (n *fakeNumber) UniqueID() string { return n.uniqueID }
func (n *fakeNumber) DeviceName() string { return "Demo" }
func (n *fakeNumber) Name() string { return "Level" }
func (n *fakeNumber) Description() entity.NumberDescription {
	return entity.NumberDescription{Key: "level", MinValue: 0, MaxValue: 10}
}
func (n *fakeNumber) Value() (float64, bool) { return n.value, true }
func (n *fakeNumber) Available() bool { return true }
func (n *fakeNumber) SetValue(ctx context.Context, v float64) error {
	n.value = v
	return nil
}

// demoIntegration loads one number per entry and fails setup when the
// entry data asks it to
type demoIntegration struct {
	numbers *entity.NumberPlatform
}

func (d *demoIntegration) Domain() string { return "demo" }

func (d *demoIntegration) SetupEntry(ctx context.Context, entry *configentry.Entry) error {
	switch entry.String("fail") {
	case "auth":
		return configentry.ErrAuthFailed
	case "retry":
		return configentry.ErrNotReady
	}
	if _, err := d.numbers.Add(entry.EntryID, "demo", []entity.Number{&fakeNumber{uniqueID: entry.Title}}); err != nil {
		return err
	}
	entry.SetRuntimeData(entry.Title)
	return nil
}

func (d *demoIntegration) UnloadEntry(ctx context.Context, entry *configentry.Entry) error {
	d.numbers.RemoveConfigEntry(entry.EntryID)
	return nil
}

func (d *demoIntegration) DescribeGroupStates(r *group.Registry) {
	r.OnOffStates("demo", []string{"running"}, "running", "idle")
}

func (d *demoIntegration) Diagnostics(ctx context.Context, entry *configentry.Entry) (map[string]any, error) {
	return map[string]any{"title": entry.RuntimeData()}, nil
}

// plainIntegration has no optional interfaces
type plainIntegration struct{}

func (plainIntegration) Domain() string { return "plain" }
func (plainIntegration) SetupEntry(context.Context, *configentry.Entry) error { return nil }
func (plainIntegration) UnloadEntry(context.Context, *configentry.Entry) error { return nil }

func newTestRegistry(t *testing.T) *integration.Registry {
	t.Helper()
	r := integration.NewRegistry()
	require.NoError(t, r.Register(integration.Info{
		Domain: "demo",
		Factory: func(ctx *integration.Context) (integration.Integration, error) {
			return &demoIntegration{numbers: ctx.Numbers}, nil
		},
	}))
	require.NoError(t, r.Register(integration.Info{
		Domain: "plain",
		Factory: func(*integration.Context) (integration.Integration, error) {
			return plainIntegration{}, nil
		},
	}))
	return r
}

func newTestHub(t *testing.T, entries []config.EntryConfig) *Hub {
	t.Helper()
	h, err := New(Options{
		Logger:       zap.NewNop(),
		Clock:        clock.NewMockClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		Store:        entity.NewMemoryStore(),
		Integrations: newTestRegistry(t),
		Entries:      entries,
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.Stop(context.Background()) })
	return h
}

func TestNew(t *testing.T) {
	h := newTestHub(t, nil)

	assert.Equal(t, []string{"demo", "plain"}, h.Domains())

	st, ok := h.Groups().StateType("demo")
	require.True(t, ok, "integration group states are described")
	assert.Equal(t, "running", st.On)

	_, ok = h.Groups().StateType("lock")
	assert.True(t, ok, "builtin domains are described")
}

func TestNew_FactoryError(t *testing.T) {
	r := integration.NewRegistry()
	require.NoError(t, r.Register(integration.Info{
		Domain: "broken",
		Factory: func(*integration.Context) (integration.Integration, error) {
			return nil, errors.New("boom")
		},
	}))

	_, err := New(Options{Integrations: r})
	assert.ErrorContains(t, err, "broken")
}

func TestStartStop(t *testing.T) {
	h := newTestHub(t, []config.EntryConfig{
		{Domain: "demo", Title: "first"},
		{Domain: "demo", Title: "second", Data: map[string]any{"fail": "auth"}},
		{Domain: "demo", Title: "third", Data: map[string]any{"fail": "retry"}},
		{Domain: "unknown", Title: "nobody"},
	})
	require.NoError(t, h.Start(context.Background()))

	states := map[string]configentry.State{}
	for _, e := range h.Manager().Entries() {
		states[e.Title] = e.State()
	}
	assert.Equal(t, map[string]configentry.State{
		"first":  configentry.StateLoaded,
		"second": configentry.StateSetupError,
		"third":  configentry.StateSetupRetry,
	}, states)
	assert.Len(t, h.Numbers().States(), 1)

	h.Stop(context.Background())
	assert.Empty(t, h.Numbers().States())
	for _, e := range h.Manager().Entries() {
		assert.Equal(t, configentry.StateNotLoaded, e.State())
	}
}

func TestStart_NothingAdded(t *testing.T) {
	h := newTestHub(t, []config.EntryConfig{{Domain: "unknown", Title: "nobody"}})
	assert.Error(t, h.Start(context.Background()))
}

func TestDiagnostics(t *testing.T) {
	h := newTestHub(t, []config.EntryConfig{
		{Domain: "demo", Title: "first"},
		{Domain: "demo", Title: "retrying", Data: map[string]any{"fail": "retry"}},
		{Domain: "plain", Title: "plain"},
	})
	require.NoError(t, h.Start(context.Background()))

	ids := map[string]string{}
	for _, e := range h.Manager().Entries() {
		ids[e.Title] = e.EntryID
	}

	diag, err := h.Diagnostics(context.Background(), ids["first"])
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "first"}, diag["data"])
	snap := diag["entry"].(configentry.Snapshot)
	assert.Equal(t, configentry.StateLoaded, snap.State)

	_, err = h.Diagnostics(context.Background(), ids["retrying"])
	assert.ErrorIs(t, err, ErrEntryNotLoaded)

	_, err = h.Diagnostics(context.Background(), ids["plain"])
	assert.ErrorIs(t, err, ErrDiagnosticsUnsupported)

	_, err = h.Diagnostics(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRegistryPersistsAcrossRestart(t *testing.T) {
	store := entity.NewMemoryStore()
	entries := []config.EntryConfig{{Domain: "demo", Title: "first"}}

	for i := 0; i < 2; i++ {
		h, err := New(Options{
			Clock:        clock.NewMockClock(time.Now()),
			Store:        store,
			Integrations: newTestRegistry(t),
			Entries:      entries,
		})
		require.NoError(t, err)
		require.NoError(t, h.Start(context.Background()))

		states := h.Numbers().States()
		require.Len(t, states, 1)
		assert.Equal(t, "number.demo_level", states[0].EntityID)
		h.Stop(context.Background())
	}

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}
