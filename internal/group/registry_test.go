package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRegistry_SeedsOnOff(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	off, ok := r.OffStateFor(StateOn)
	require.True(t, ok)
	assert.Equal(t, StateOff, off)

	on, ok := r.OnStateFor(StateOff)
	require.True(t, ok)
	assert.Equal(t, StateOn, on)
}

func TestOnOffStates_RegistersDomain(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.OnOffStates("plant", []string{"problem"}, "problem", "ok")

	st, ok := r.StateType("plant")
	require.True(t, ok)
	assert.Equal(t, StateType{On: "problem", Off: "ok"}, st)
	assert.Equal(t, []string{"problem"}, r.OnStates("plant"))

	off, ok := r.OffStateFor("problem")
	require.True(t, ok)
	assert.Equal(t, "ok", off)

	on, ok := r.OnStateFor("ok")
	require.True(t, ok)
	assert.Equal(t, "problem", on)
}

func TestOnOffStates_DoesNotOverwriteGlobalMappings(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.OnOffStates("first", []string{"active"}, "active", "idle")
	r.OnOffStates("second", []string{"active", StateOn}, "active", "idle_too")

	off, _ := r.OffStateFor("active")
	assert.Equal(t, "idle", off, "first registration wins")

	off, _ = r.OffStateFor(StateOn)
	assert.Equal(t, StateOff, off, "seed mapping is kept")

	on, _ := r.OnStateFor("idle_too")
	assert.Equal(t, "active", on)
}

func TestOnOffStates_ReplacesDomainEntry(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.OnOffStates("thing", []string{"a", "b"}, "a", "z")
	r.OnOffStates("thing", []string{"c"}, "c", "y")

	st, _ := r.StateType("thing")
	assert.Equal(t, StateType{On: "c", Off: "y"}, st)
	assert.Equal(t, []string{"c"}, r.OnStates("thing"))
}

func TestEvaluate(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.OnOffStates("plant", []string{"problem"}, "problem", "ok")
	DescribeBuiltinDomains(r)

	tests := []struct {
		name     string
		domain   string
		members  []string
		expected string
	}{
		{"plant all ok", "plant", []string{"ok", "ok"}, "ok"},
		{"plant one problem", "plant", []string{"ok", "problem"}, "problem"},
		{"plant no members", "plant", nil, "ok"},
		{"lock any unlocked", "lock", []string{"locked", "unlocked"}, "unlocked"},
		{"lock all locked", "lock", []string{"locked", "locked"}, "locked"},
		{"lock jammed is not on", "lock", []string{"jammed"}, "locked"},
		{"vacuum cleaning", "vacuum", []string{"docked", "cleaning"}, StateOn},
		{"climate heat", "climate", []string{"off", "heat"}, StateOn},
		{"tracker away", "device_tracker", []string{"not_home"}, "not_home"},
		{"tracker home", "device_tracker", []string{"not_home", "home"}, "home"},
		{"alarm triggered", "alarm_control_panel", []string{"disarmed", "triggered"}, StateOn},
		{"water heater eco", "water_heater", []string{"eco"}, StateOn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Evaluate(tt.domain, tt.members)
			require.True(t, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEvaluate_UnknownOrExcluded(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.OnOffStates("sensor", []string{"on"}, "on", "off")
	r.ExcludeDomain("sensor")

	_, ok := r.Evaluate("sensor", []string{"on"})
	assert.False(t, ok)
	assert.True(t, r.IsExcluded("sensor"))

	_, ok = r.Evaluate("unknown", []string{"on"})
	assert.False(t, ok)
}

type describerFunc func(r *Registry)

func (f describerFunc) DescribeGroupStates(r *Registry) { f(r) }

func TestDescribe(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Describe(describerFunc(DescribeBuiltinDomains), describerFunc(func(r *Registry) {
		r.ExcludeDomain("sensor")
	}))

	assert.Equal(t, []string{"alarm_control_panel", "climate", "device_tracker", "lock", "vacuum", "water_heater"}, r.Domains())
	assert.True(t, r.IsExcluded("sensor"))
}
