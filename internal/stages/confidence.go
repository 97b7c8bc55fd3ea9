package stages

import (
	"encoding/json"
	"strconv"
)

// confidenceKeys is the fixed priority order used to pull a confidence value
// out of a detector payload. The first key that yields a number wins.
var confidenceKeys = []string{"confidence", "score", "nsfw_score", "probability"}

// PayloadConfidence extracts a confidence value from a detector payload by
// walking the fixed key priority list. Payloads with none of the keys, or
// with non-numeric values under all of them, yield 0.
func PayloadConfidence(payload map[string]any) float64 {
	for _, key := range confidenceKeys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		if value, ok := asFloat(raw); ok {
			return ClampConfidence(value)
		}
	}
	return 0
}

// ClampConfidence bounds a confidence value to [0, 1].
func ClampConfidence(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
