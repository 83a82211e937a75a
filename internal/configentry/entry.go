// Package configentry manages the setup/unload lifecycle of integration
// config entries and maps setup failures onto entry states.
package configentry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a config entry
type State string

const (
	StateNotLoaded       State = "not_loaded"
	StateSetupInProgress State = "setup_in_progress"
	StateLoaded          State = "loaded"
	StateSetupError      State = "setup_error"
	StateSetupRetry      State = "setup_retry"
	StateFailedUnload    State = "failed_unload"
)

var (
	// ErrAuthFailed marks credentials the vendor rejected. Setup is not retried.
	ErrAuthFailed = errors.New("config entry authentication failed")

	// ErrNotReady marks a transient failure. Setup is retried with backoff.
	ErrNotReady = errors.New("config entry not ready")
)

var entryNamespace = uuid.MustParse("6f0a4d8e-4c4e-4f7a-9c55-3f1d1f0b8a21")

// NewEntryID derives a stable entry id so registry entries survive restarts
func NewEntryID(domain, title string) string {
	return uuid.NewSHA1(entryNamespace, []byte(domain+"/"+title)).String()
}

// Entry is one configured account or device of an integration
type Entry struct {
	EntryID string
	Domain  string
	Title   string
	Data    map[string]any
	Options map[string]any

	mu          sync.RWMutex
	state       State
	reason      string
	runtimeData any
	tries       int
}

// State returns the entry's lifecycle state
func (e *Entry) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Reason returns the error text of the last failed setup
func (e *Entry) Reason() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reason
}

// RuntimeData returns what the integration stored during setup
func (e *Entry) RuntimeData() any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runtimeData
}

// SetRuntimeData is called by integrations during setup
func (e *Entry) SetRuntimeData(data any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtimeData = data
}

// String reads a string from Data
func (e *Entry) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Duration reads a duration from Options. Values may be a time.Duration or a
// string accepted by time.ParseDuration; anything else yields def.
func (e *Entry) Duration(key string, def time.Duration) time.Duration {
	switch v := e.Options[key].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func (e *Entry) setState(state State, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
	e.reason = reason
}

// Snapshot is a serializable view of an entry
type Snapshot struct {
	EntryID string `json:"entry_id"`
	Domain  string `json:"domain"`
	Title   string `json:"title"`
	State   State  `json:"state"`
	Reason  string `json:"reason,omitempty"`
}

// Snapshot returns the entry's serializable view
func (e *Entry) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		EntryID: e.EntryID,
		Domain:  e.Domain,
		Title:   e.Title,
		State:   e.state,
		Reason:  e.reason,
	}
}
