package fleetapi

// Flatten joins nested object keys with "_" so that
// {"charge_state": {"battery_level": 80}} becomes
// {"charge_state_battery_level": 80}. Lists are kept as values.
func Flatten(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	flattenInto(out, "", data)
	return out
}

func flattenInto(out map[string]any, parent string, data map[string]any) {
	for k, v := range data {
		key := k
		if parent != "" {
			key = parent + "_" + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}
