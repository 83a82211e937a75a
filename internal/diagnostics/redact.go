// Package diagnostics builds redacted dumps of integration runtime data.
package diagnostics

// Redacted replaces the value of every redacted key
const Redacted = "**REDACTED**"

// Redact returns a copy of data with the values of keys replaced by
// Redacted at any depth. Maps and slices are copied; other values are
// shared. Nil and empty values are left as they are.
func Redact(data any, keys []string) any {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return redact(data, set)
}

// RedactMap is Redact for the common map case
func RedactMap(data map[string]any, keys []string) map[string]any {
	out, _ := Redact(data, keys).(map[string]any)
	return out
}

func redact(data any, keys map[string]struct{}) any {
	switch v := data.(type) {
	case map[string]any:
		if v == nil {
			return v
		}
		out := make(map[string]any, len(v))
		for k, val := range v {
			if _, ok := keys[k]; ok && !isEmpty(val) {
				out[k] = Redacted
				continue
			}
			out[k] = redact(val, keys)
		}
		return out
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = redact(val, keys)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = redact(val, keys)
		}
		return out
	default:
		return v
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
