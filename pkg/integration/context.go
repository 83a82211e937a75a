package integration

import (
	"integrationhub/internal/clock"
	"integrationhub/internal/entity"
	"integrationhub/internal/group"

	"go.uber.org/zap"
)

// Context provides dependencies to integrations during creation.
// It wraps the hub services shared by all integrations in a single struct
// for cleaner constructor signatures.
type Context struct {
	// Logger is a structured logger for the integration to use.
	// Integrations should use logger.Named(domain) for namespacing.
	Logger *zap.Logger

	// Clock drives polling, retries and command delays.
	Clock clock.Clock

	// Entities is the persistent entity registry.
	Entities *entity.Registry

	// Numbers holds loaded number entities and routes set_value calls.
	Numbers *entity.NumberPlatform

	// Groups collects group on/off states.
	Groups *group.Registry
}

// NewContext creates a new integration context with all required dependencies.
func NewContext(
	logger *zap.Logger,
	clk clock.Clock,
	entities *entity.Registry,
	numbers *entity.NumberPlatform,
	groups *group.Registry,
) *Context {
	return &Context{
		Logger:   logger,
		Clock:    clk,
		Entities: entities,
		Numbers:  numbers,
		Groups:   groups,
	}
}
