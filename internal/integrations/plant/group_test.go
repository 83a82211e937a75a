package plant

import (
	"context"
	"testing"

	"integrationhub/internal/configentry"
	"integrationhub/internal/group"
	"integrationhub/pkg/integration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDescribeGroupStates(t *testing.T) {
	r := group.NewRegistry(zap.NewNop())
	(&Integration{}).DescribeGroupStates(r)

	st, ok := r.StateType(Domain)
	require.True(t, ok)
	assert.Equal(t, group.StateType{On: "problem", Off: "ok"}, st)
	assert.Equal(t, []string{"problem"}, r.OnStates(Domain))

	state, ok := r.Evaluate(Domain, []string{"ok", "problem", "ok"})
	require.True(t, ok)
	assert.Equal(t, "problem", state)

	state, _ = r.Evaluate(Domain, []string{"ok", "ok"})
	assert.Equal(t, "ok", state)
}

func TestImplementsGroupDescriber(t *testing.T) {
	var in integration.Integration = &Integration{}
	_, ok := in.(integration.GroupDescriber)
	assert.True(t, ok)
}

func TestSetupEntryRejected(t *testing.T) {
	err := (&Integration{}).SetupEntry(context.Background(), &configentry.Entry{})
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	info := integration.Get(Domain)
	require.NotNil(t, info)
	assert.Equal(t, 10, info.Order)
}
