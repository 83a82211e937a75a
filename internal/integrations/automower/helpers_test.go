package automower

import (
	"context"
	"testing"
	"time"

	"integrationhub/internal/automowerapi"
	"integrationhub/internal/clock"
	"integrationhub/internal/configentry"
	"integrationhub/internal/entity"
	"integrationhub/internal/group"
	"integrationhub/pkg/integration"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testMowerID = "c7233734-b219-4287-a173-08e3643f89f0"

func testMowers() map[string]*automowerapi.MowerAttributes {
	return map[string]*automowerapi.MowerAttributes{
		testMowerID: {
			Name:          "Test Mower 1",
			Model:         "450XH-TEST",
			SerialNumber:  123,
			Capabilities:  automowerapi.Capabilities{WorkAreas: true, Headlights: true},
			Mower:         automowerapi.MowerState{Mode: "MAIN_AREA", Activity: "PARKED_IN_CS", State: "RESTRICTED"},
			Battery:       automowerapi.Battery{Level: 100},
			Connected:     true,
			CuttingHeight: automowerapi.IntPtr(4),
			WorkAreas: map[int]automowerapi.WorkArea{
				123456: {Name: "Front lawn", CuttingHeight: 50},
				0:      {Name: "my lawn", CuttingHeight: 50},
			},
		},
	}
}

type testEnv struct {
	clock       *clock.MockClock
	registry    *entity.Registry
	numbers     *entity.NumberPlatform
	session     *automowerapi.MockSession
	manager     *configentry.Manager
	integration *Integration
	entry       *configentry.Entry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	clk := clock.NewMockClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	registry := entity.NewRegistry(nil, logger)
	numbers := entity.NewNumberPlatform(registry, logger)
	session := automowerapi.NewMockSession(testMowers())

	ictx := integration.NewContext(logger, clk, registry, numbers, group.NewRegistry(logger))
	in := New(ictx, func(*configentry.Entry, *zap.Logger) (automowerapi.Session, error) {
		return session, nil
	})

	manager := configentry.NewManager(clk, logger)
	manager.AddIntegration(in)

	env := &testEnv{
		clock:       clk,
		registry:    registry,
		numbers:     numbers,
		session:     session,
		manager:     manager,
		integration: in,
		entry: &configentry.Entry{
			Domain: Domain,
			Title:  "Husqvarna Automower of Erika Mustermann",
			Data:   map[string]any{ConfKeyToken: "token"},
		},
	}
	env.entry.EntryID = configentry.NewEntryID(env.entry.Domain, env.entry.Title)

	t.Cleanup(func() {
		manager.Shutdown(context.Background())
	})
	return env
}

// enableCuttingHeight pre-registers the mower cutting height entity as
// enabled, since it is disabled by default.
func (e *testEnv) enableCuttingHeight(t *testing.T) {
	t.Helper()
	_, err := e.registry.GetOrCreate(entity.NumberDomain, Domain, testMowerID+"_cutting_height", entity.CreateOptions{
		ConfigEntryID:     e.entry.EntryID,
		SuggestedObjectID: "Test Mower 1 Cutting height",
	})
	require.NoError(t, err)
}

func (e *testEnv) setup(t *testing.T) {
	t.Helper()
	require.NoError(t, e.manager.Add(context.Background(), e.entry))
	require.Equal(t, configentry.StateLoaded, e.entry.State(), e.entry.Reason())
}

func (e *testEnv) runtimeData(t *testing.T) *RuntimeData {
	t.Helper()
	rd, ok := e.entry.RuntimeData().(*RuntimeData)
	require.True(t, ok)
	return rd
}
