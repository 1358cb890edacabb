package config

import (
	"maps"
	"strconv"
	"strings"
)

// Config is a read-only view over a decoded document or environment overlay.
// Accessors return the supplied default when a key is missing or holds a
// value of the wrong type.
type Config struct {
	data map[string]any
}

// New creates a Config from the given map. A nil map yields an empty Config.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// String returns the string under key, or defaultVal.
func (c Config) String(key, defaultVal string) string {
	if s, ok := c.data[key].(string); ok {
		return s
	}
	return defaultVal
}

// Int returns the integer under key, or defaultVal.
//
// YAML decodes integers as int, JSON as float64 (accepted when whole),
// and environment variables arrive as strings (accepted when they parse).
func (c Config) Int(key string, defaultVal int) int {
	switch val := c.data[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n
		}
	}
	return defaultVal
}

// Section returns the nested mapping under key.
// Missing or non-mapping values yield an empty Config.
func (c Config) Section(key string) Config {
	if m, ok := c.data[key].(map[string]any); ok {
		return New(m)
	}
	return New(nil)
}

// Has reports whether key is set.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Merge returns a new Config with overlay's keys replacing c's.
// Neither input is modified.
func (c Config) Merge(overlay Config) Config {
	out := make(map[string]any, len(c.data)+len(overlay.data))
	maps.Copy(out, c.data)
	maps.Copy(out, overlay.data)
	return Config{data: out}
}

// Raw returns the underlying map. Callers must not modify it.
func (c Config) Raw() map[string]any {
	return c.data
}
