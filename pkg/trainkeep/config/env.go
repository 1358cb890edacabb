package config

import (
	"os"
	"strings"
)

// FromEnv builds a Config from environment variables named
// PREFIX_KEY, upper-cased, for each of keys. Unset variables are
// left out so Merge keeps the underlying value.
//
//	FromEnv("TRAINKEEP", "checkpoint_dir") // reads TRAINKEEP_CHECKPOINT_DIR
func FromEnv(prefix string, keys ...string) Config {
	data := make(map[string]any)
	for _, key := range keys {
		name := strings.ToUpper(prefix + "_" + key)
		if val, ok := os.LookupEnv(name); ok {
			data[key] = val
		}
	}
	return New(data)
}
