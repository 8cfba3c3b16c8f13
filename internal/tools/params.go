package tools

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// number reads a numeric parameter. JSON numbers, Go integers and numeric
// strings are accepted.
func number(params map[string]any, key string) (float64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("parameter %s is missing", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(n, ",", "")), 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %s is not a number: %q", key, n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("parameter %s is not a number", key)
}

// optNumber reads an optional numeric parameter, returning def when absent
// or not numeric.
func optNumber(params map[string]any, key string, def float64) float64 {
	if f, err := number(params, key); err == nil {
		return f
	}
	return def
}

func str(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func boolean(params map[string]any, key string) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func list(params map[string]any, key string) []any {
	switch v := params[key].(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	}
	return nil
}

// seed derives a stable value from the given parts, so lookups answer the
// same way for the same inputs.
func seed(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(strings.ToLower(strings.TrimSpace(p))))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
