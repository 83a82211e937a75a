// Package integration provides the integration interfaces and registry for
// the hub. Integrations register themselves with the global registry using
// init() functions, allowing compile-time selection and override of vendor
// implementations.
package integration

import (
	"context"

	"integrationhub/internal/configentry"
	"integrationhub/internal/group"
)

// Integration binds one vendor API to the hub's entity model.
// It is the handler the config entry manager drives.
type Integration interface {
	// Domain returns the unique identifier for this integration.
	// Config entries name the domain that sets them up.
	Domain() string

	// SetupEntry connects to the vendor for one config entry.
	// - Performs the first data refresh
	// - Registers entities with the number platform
	// - Stores its runtime data on the entry
	// Return configentry.ErrAuthFailed for rejected credentials and
	// configentry.ErrNotReady for transient failures.
	SetupEntry(ctx context.Context, entry *configentry.Entry) error

	// UnloadEntry releases everything SetupEntry created.
	UnloadEntry(ctx context.Context, entry *configentry.Entry) error
}

// GroupDescriber is an optional interface for integrations that contribute
// on/off states to the group registry.
type GroupDescriber interface {
	DescribeGroupStates(r *group.Registry)
}

// DiagnosticsProvider is an optional interface for integrations that can dump
// a redacted view of a loaded entry's runtime data.
type DiagnosticsProvider interface {
	Diagnostics(ctx context.Context, entry *configentry.Entry) (map[string]any, error)
}

// Factory is a function that creates a new integration instance given a
// context. Factories are registered with the global registry and called
// during hub startup.
type Factory func(ctx *Context) (Integration, error)
