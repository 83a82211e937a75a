// Package group holds the on/off state classification that integrations
// contribute for legacy entity groups.
package group

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

const (
	StateOn  = "on"
	StateOff = "off"
)

// StateType is the on and off state a group of one domain reports
type StateType struct {
	On  string `json:"on_state"`
	Off string `json:"off_state"`
}

// Describer is implemented by integrations that contribute group states
type Describer interface {
	DescribeGroupStates(r *Registry)
}

// Registry collects on/off states per domain
type Registry struct {
	logger *zap.Logger

	mu               sync.RWMutex
	onOffMapping     map[string]string
	offOnMapping     map[string]string
	onStatesByDomain map[string]map[string]struct{}
	excludeDomains   map[string]struct{}
	stateTypes       map[string]StateType
}

// NewRegistry creates a registry seeded with the plain on/off pair
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:           logger.Named("group"),
		onOffMapping:     map[string]string{StateOn: StateOff},
		offOnMapping:     map[string]string{StateOff: StateOn},
		onStatesByDomain: make(map[string]map[string]struct{}),
		excludeDomains:   make(map[string]struct{}),
		stateTypes:       make(map[string]StateType),
	}
}

// ExcludeDomain keeps a domain out of group aggregation
func (r *Registry) ExcludeDomain(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.excludeDomains[domain] = struct{}{}
}

// IsExcluded reports whether domain was excluded
func (r *Registry) IsExcluded(domain string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.excludeDomains[domain]
	return ok
}

// OnOffStates registers the states that count as "on" for domain, the state
// a group reports when any member is on, and the state it reports otherwise.
// Existing global mappings are never overwritten; the domain's own entry is.
func (r *Registry) OnOffStates(domain string, onStates []string, defaultOn, off string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := make(map[string]struct{}, len(onStates))
	for _, s := range onStates {
		set[s] = struct{}{}
		if _, ok := r.onOffMapping[s]; !ok {
			r.onOffMapping[s] = off
		}
	}
	if _, ok := r.offOnMapping[off]; !ok {
		r.offOnMapping[off] = defaultOn
	}
	r.stateTypes[domain] = StateType{On: defaultOn, Off: off}
	r.onStatesByDomain[domain] = set

	r.logger.Debug("Registered group states",
		zap.String("domain", domain),
		zap.Strings("on_states", onStates),
		zap.String("default_on", defaultOn),
		zap.String("off", off))
}

// OnStates returns the sorted on-states registered for domain
func (r *Registry) OnStates(domain string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.onStatesByDomain[domain]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// StateType returns the group state pair for domain
func (r *Registry) StateType(domain string) (StateType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stateTypes[domain]
	return st, ok
}

// OffStateFor returns the off state paired with an on state
func (r *Registry) OffStateFor(onState string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.onOffMapping[onState]
	return s, ok
}

// OnStateFor returns the default on state paired with an off state
func (r *Registry) OnStateFor(offState string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.offOnMapping[offState]
	return s, ok
}

// Domains returns every registered domain, sorted
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.stateTypes))
	for d := range r.stateTypes {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Evaluate aggregates member states of a single-domain group. The group is
// on when any member is in one of the domain's on-states. The second return
// is false for excluded or unregistered domains.
func (r *Registry) Evaluate(domain string, memberStates []string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, excluded := r.excludeDomains[domain]; excluded {
		return "", false
	}
	st, ok := r.stateTypes[domain]
	if !ok {
		return "", false
	}
	on := r.onStatesByDomain[domain]
	for _, s := range memberStates {
		if _, isOn := on[s]; isOn {
			return st.On, true
		}
	}
	return st.Off, true
}

// Describe runs every describer against the registry
func (r *Registry) Describe(describers ...Describer) {
	for _, d := range describers {
		d.DescribeGroupStates(r)
	}
}
