// Package plant contributes the plant monitor's group states.
package plant

import (
	"context"
	"fmt"

	"integrationhub/internal/configentry"
	"integrationhub/internal/group"
	"integrationhub/pkg/integration"
)

// Domain is the plant monitor's entity domain
const Domain = "plant"

const (
	StateProblem = "problem"
	StateOK      = "ok"
)

// Integration only describes group states; it has no config entries
type Integration struct{}

func init() {
	integration.Register(integration.Info{
		Domain:      Domain,
		Description: "Plant monitor group states",
		Priority:    integration.PriorityDefault,
		Order:       10,
		Factory: func(ctx *integration.Context) (integration.Integration, error) {
			return &Integration{}, nil
		},
	})
}

// Domain returns the integration domain
func (i *Integration) Domain() string {
	return Domain
}

// DescribeGroupStates registers "problem" as the on state and "ok" as off
func (i *Integration) DescribeGroupStates(r *group.Registry) {
	r.OnOffStates(Domain, []string{StateProblem}, StateProblem, StateOK)
}

// SetupEntry rejects entries; plants are configured elsewhere
func (i *Integration) SetupEntry(ctx context.Context, entry *configentry.Entry) error {
	return fmt.Errorf("%s does not support config entries", Domain)
}

// UnloadEntry is a no-op
func (i *Integration) UnloadEntry(ctx context.Context, entry *configentry.Entry) error {
	return nil
}
