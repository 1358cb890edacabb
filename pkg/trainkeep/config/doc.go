/*
Package config reads trainkeep settings from YAML or JSON files and the
environment.

Documents decode into a Config, whose accessors return the caller's
default for missing keys and type mismatches:

	file, err := config.FromFile("trainkeep.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	cfg := file.Section("checkpoint").Merge(config.FromEnv("TRAINKEEP", "checkpoint_dir"))
	dir := cfg.String("checkpoint_dir", "")
	maxHistory := cfg.Int("max_history", 10)

Environment values win over file values when merged last. Int accepts
whole JSON numbers and numeric strings.

Config is safe for concurrent reads.
*/
package config
