package config

import (
	"fmt"
	"time"
)

// OptDuration extracts a duration from the entry's Options. The value may be
// a Go duration string ("2s") or a number of seconds. Returns 0 when the key
// is absent.
func (e ProviderEntry) OptDuration(key string) (time.Duration, error) {
	v, ok := e.Options[key]
	if !ok {
		return 0, nil
	}
	switch v := v.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("config: option %q: %w", key, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("config: option %q: unsupported type %T", key, v)
	}
}

// OptInt extracts an integer from the entry's Options. Returns def when the
// key is absent or not an integer.
func (e ProviderEntry) OptInt(key string, def int) int {
	if n, ok := e.Options[key].(int); ok {
		return n
	}
	return def
}
