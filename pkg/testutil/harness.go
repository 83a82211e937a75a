// This file provides a TestEnv for end-to-end tests of the hub.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"integrationhub/internal/api"
	"integrationhub/internal/automowerapi"
	"integrationhub/internal/clock"
	"integrationhub/internal/config"
	"integrationhub/internal/configentry"
	"integrationhub/internal/entity"
	"integrationhub/internal/hub"
	"integrationhub/internal/integrations/automower"
	"integrationhub/pkg/integration"

	"go.uber.org/zap"
)

// TestToken is the token the mock server accepts
const TestToken = "test_token"

// TestEnv runs a hub with the mower integration against a MockAutomowerServer.
// Polling is effectively off so tests observe pushed events and explicit
// refreshes only.
type TestEnv struct {
	Server *MockAutomowerServer
	Hub    *hub.Hub
	API    *api.Server
	Logger *zap.Logger
	Store  *entity.MemoryStore

	cleanupOnce sync.Once
}

// EnvOptions tunes NewTestEnv
type EnvOptions struct {
	// Token sent by the hub; defaults to TestToken
	Token string

	// WorkAreaRefreshDelay defaults to 10ms
	WorkAreaRefreshDelay time.Duration

	// Store carries the entity registry over a restart
	Store *entity.MemoryStore
}

// NewTestEnv creates a started mock server with mowers and a hub with one
// mower config entry pointed at it.
//
// Example usage:
//
//	env, err := testutil.NewTestEnv(mowers, testutil.EnvOptions{})
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer env.Cleanup()
func NewTestEnv(mowers map[string]*automowerapi.MowerAttributes, opts EnvOptions) (*TestEnv, error) {
	logger, _ := zap.NewDevelopment()

	if opts.Token == "" {
		opts.Token = TestToken
	}
	if opts.WorkAreaRefreshDelay == 0 {
		opts.WorkAreaRefreshDelay = 10 * time.Millisecond
	}
	if opts.Store == nil {
		opts.Store = entity.NewMemoryStore()
	}

	server := NewMockAutomowerServer(TestToken)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mock server: %w", err)
	}
	for id, m := range mowers {
		server.SetMower(id, m)
	}

	registry := integration.NewRegistry()
	if err := registry.Register(integration.Info{
		Domain: automower.Domain,
		Factory: func(ctx *integration.Context) (integration.Integration, error) {
			return automower.New(ctx, nil), nil
		},
	}); err != nil {
		server.Stop()
		return nil, err
	}

	h, err := hub.New(hub.Options{
		Logger:       logger,
		Clock:        clock.NewRealClock(),
		Store:        opts.Store,
		Integrations: registry,
		Entries: []config.EntryConfig{{
			Domain: automower.Domain,
			Title:  "Husqvarna Automower of Erika Mustermann",
			Data: map[string]any{
				automower.ConfKeyToken:     opts.Token,
				automower.ConfKeyAPIKey:    "api_key",
				automower.ConfKeyBaseURL:   server.URL(),
				automower.ConfKeyStreamURL: server.StreamURL(),
			},
			Options: map[string]any{
				automower.OptScanInterval:         "24h",
				automower.OptWorkAreaRefreshDelay: opts.WorkAreaRefreshDelay.String(),
			},
		}},
	})
	if err != nil {
		server.Stop()
		return nil, fmt.Errorf("failed to create hub: %w", err)
	}

	if err := h.Start(context.Background()); err != nil {
		server.Stop()
		return nil, fmt.Errorf("failed to start hub: %w", err)
	}

	return &TestEnv{
		Server: server,
		Hub:    h,
		API:    api.NewServer(h, logger, 0),
		Logger: logger,
		Store:  opts.Store,
	}, nil
}

// Entry returns the mower config entry
func (e *TestEnv) Entry() *configentry.Entry {
	entries := e.Hub.Manager().Entries()
	if len(entries) == 0 {
		return nil
	}
	return entries[0]
}

// Cleanup stops the hub, then the server. It is safe to call more than once.
// Always call this in a defer after creating the TestEnv.
func (e *TestEnv) Cleanup() {
	e.cleanupOnce.Do(func() {
		if e.Hub != nil {
			e.Hub.Stop(context.Background())
		}
		if e.Server != nil {
			e.Server.Stop()
		}
	})
}
