package config

import "fmt"

// Generic-map coercion helpers. Job and runner specs stay as map[string]any
// after variable expansion; these helpers read typed values out of them
// without panicking on absent or oddly-typed entries.

// String returns m[key] as a string, or "".
func String(m map[string]any, key string) string {
	return StringOr(m, key, "")
}

// StringOr returns m[key] as a string, or def when absent or empty.
func StringOr(m map[string]any, key, def string) string {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case string:
		if v == "" {
			return def
		}
		return v
	case nil:
		return def
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns m[key] as a bool, or false.
func Bool(m map[string]any, key string) bool {
	return BoolOr(m, key, false)
}

// BoolOr returns m[key] as a bool, or def when absent.
func BoolOr(m map[string]any, key string, def bool) bool {
	if m == nil {
		return def
	}
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

// IntOr returns m[key] as an int, or def when absent or not numeric.
func IntOr(m map[string]any, key string, def int) int {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Map returns m[key] as a nested map, or nil.
func Map(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

// Slice returns m[key] as a slice, or nil. A scalar value becomes a
// one-element slice, matching how documents often write single-entry lists.
func Slice(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []any:
		return v
	case nil:
		return nil
	default:
		return []any{v}
	}
}

// StringSlice returns m[key] as a list of strings.
func StringSlice(m map[string]any, key string) []string {
	raw := Slice(m, key)
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, fmt.Sprint(v))
	}
	return out
}
