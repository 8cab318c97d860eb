package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads path, applies POPC_ environment overrides and defaults.
// The result is not validated; call Validate.
func LoadFromFile(path string) (*Config, error) {
	// Clean the path to prevent directory traversal attacks
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - Config file path is trusted (from admin/user)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and defaults.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadFromEnv builds configuration from environment variables and defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("load from env: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Load reads path when it is non-empty and falls back to the environment
// otherwise.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromEnv()
	}
	return LoadFromFile(path)
}
