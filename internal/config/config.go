package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models flightdeck.yml: the remote profile and the timing knobs of
// the entity store. A single boolean gates whether the remote is attempted at
// all; when false the system runs purely on the local mirror.
type Config struct {
	Remote struct {
		Enabled        bool   `yaml:"enabled"`
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		TokenFile      string `yaml:"token_file"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"remote"`
	Refresh struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"refresh"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Remote.Enabled && c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required when remote.enabled")
	}
	if c.Remote.TimeoutSeconds < 0 {
		return fmt.Errorf("remote.timeout_seconds must not be negative")
	}
	if c.Refresh.IntervalSeconds < 0 {
		return fmt.Errorf("refresh.interval_seconds must not be negative")
	}
	return nil
}

// Timeout returns the remote call budget.
func (c *Config) Timeout() time.Duration {
	if c.Remote.TimeoutSeconds <= 0 {
		return 8 * time.Second
	}
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// RefreshInterval returns the background mirror refresh period.
func (c *Config) RefreshInterval() time.Duration {
	if c.Refresh.IntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Refresh.IntervalSeconds) * time.Second
}

// BearerToken reads the externally managed token, if configured.
func (c *Config) BearerToken() (string, error) {
	if c.Remote.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Remote.TokenFile)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return string(trimNewline(data)), nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "flightdeck.yml")
}

// Default returns a mirror-only configuration.
func Default() *Config {
	var cfg Config
	cfg.Remote.TimeoutSeconds = 8
	cfg.Refresh.IntervalSeconds = 60
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
