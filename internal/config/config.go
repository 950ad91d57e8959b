// Package config loads gridsync settings from a YAML file with environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvEndpoint = "GRIDSYNC_ENDPOINT"
	EnvAPIKey   = "GRIDSYNC_API_KEY"
	EnvCallerID = "GRIDSYNC_CALLER_ID"
	EnvTenantID = "GRIDSYNC_TENANT_ID"
)

// DefaultPath is where the CLI looks when --config is not given.
const DefaultPath = "gridsync.yaml"

// Config is the gridsync configuration.
type Config struct {
	// Endpoint is the base URL of the record store.
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`

	// CallerID is sent as userid and recorded as created_by/updated_by.
	CallerID string `yaml:"caller_id"`

	// TenantID is stamped on every pushed row when set.
	TenantID *int64 `yaml:"tenant_id"`

	CatalogDir string `yaml:"catalog_dir"`

	// Database is the DSN served by `gridsync serve`: a SQLite path or a
	// postgres:// URL.
	Database string `yaml:"database"`
	Listen   string `yaml:"listen"`

	Timeout Duration `yaml:"timeout"`
}

// Duration is a time.Duration written as "30s" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", n.Line, s)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Endpoint:   "http://localhost:8080",
		CallerID:   "system",
		CatalogDir: "catalog",
		Database:   "gridsync.db",
		Listen:     ":8080",
		Timeout:    Duration(30 * time.Second),
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := decode(bytes.NewReader(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // Reject unknown fields
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvCallerID); v != "" {
		c.CallerID = v
	}
	if v := os.Getenv(EnvTenantID); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", EnvTenantID, v)
		}
		c.TenantID = &id
	}
	return nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Endpoint) == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
