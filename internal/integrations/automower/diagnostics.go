package automower

import (
	"encoding/json"
	"fmt"
)

// toMap converts typed data into the generic form diagnostics redacts
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode diagnostics: %w", err)
	}
	return out, nil
}
