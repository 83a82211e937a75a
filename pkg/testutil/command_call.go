package testutil

import "time"

// CommandCall records a command received by the mock server
type CommandCall struct {
	Timestamp  time.Time
	MowerID    string
	WorkAreaID *int
	Height     int
}

// FilterCommandCalls returns the calls for one mower. A nil workAreaID keeps
// only mower-level calls.
func FilterCommandCalls(calls []CommandCall, mowerID string, workAreaID *int) []CommandCall {
	var filtered []CommandCall
	for _, call := range calls {
		if call.MowerID != mowerID {
			continue
		}
		switch {
		case workAreaID == nil && call.WorkAreaID == nil:
		case workAreaID != nil && call.WorkAreaID != nil && *workAreaID == *call.WorkAreaID:
		default:
			continue
		}
		filtered = append(filtered, call)
	}
	return filtered
}
