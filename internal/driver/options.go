package driver

import "time"

// Options is the free-form options object attached to a driver selection in
// the persisted configuration. Values arrive from JSON, so numbers are
// float64 and need coercion.
type Options map[string]any

// String returns the named option or def when absent or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Int returns the named option or def when absent or not numeric.
func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// Duration parses the named option as a Go duration string ("30s", "5m").
func (o Options) Duration(key string, def time.Duration) time.Duration {
	s, ok := o[key].(string)
	if !ok || s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Bool returns the named option or def when absent or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}
