package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"goblin/pkg/logging"
)

// Load reads and validates the config document at path. Unknown JSON fields
// are rejected outright rather than silently ignored.
func Load(path string, log *logging.Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("config: %s contains trailing data after the document", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log != nil {
		log.Info("loaded configuration", "path", path, "servers", len(cfg.Servers))
	}
	return &cfg, nil
}

// Save writes cfg to path atomically: a `.backup` sibling of any existing
// file is created first, the new document is written to a temp file in the
// same directory, then renamed into place.
func Save(path string, cfg *Config, log *logging.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create directory %s: %w", dir, err)
	}

	if existing, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".backup", existing, 0o644); err != nil {
			return fmt.Errorf("config: write backup for %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("config: stat existing %s: %w", path, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".goblin-config-*.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("config: rename into place %s: %w", path, err)
	}

	if log != nil {
		log.Info("saved configuration", "path", path, "servers", len(cfg.Servers))
	}
	return nil
}
