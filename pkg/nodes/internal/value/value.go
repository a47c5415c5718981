// Package value provides input coercion helpers shared by the built-in
// nodes. Node inputs arrive JSON-decoded, so numbers are usually float64,
// but values set from Go code may carry native integer types.
package value

import (
	"encoding/json"
	"time"
)

// Number extracts a numeric value from a node input.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}

// Duration extracts a duration from a node input. Numbers are seconds;
// strings use Go duration syntax ("90s", "2m", "1h30m").
func Duration(v any) (time.Duration, bool) {
	if str, ok := v.(string); ok {
		d, err := time.ParseDuration(str)

		return d, err == nil
	}

	if seconds, ok := Number(v); ok {
		return time.Duration(seconds * float64(time.Second)), true
	}

	return 0, false
}
