package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/foxzi/campaignctl/internal/ipfilter"
)

// Environment variables overriding the file
const (
	EnvToken   = "CAMPAIGNCTL_TOKEN"
	EnvBaseURL = "CAMPAIGNCTL_BASE_URL"
)

// Config is the main configuration structure
type Config struct {
	Remote      RemoteConfig      `yaml:"remote"`
	Credentials CredentialsConfig `yaml:"credentials"`
	API         APIConfig         `yaml:"api"`
	Poller      PollerConfig      `yaml:"poller"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RemoteConfig describes the campaign API being controlled
type RemoteConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"` // Default: 30s
}

// CredentialsConfig contains the bearer credential sources
type CredentialsConfig struct {
	Token     string `yaml:"token"`      // Static token, takes precedence over the store
	StorePath string `yaml:"store_path"` // bbolt file written by "campaignctl login"
}

// APIConfig contains operator console HTTP settings
type APIConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ListenAddr   string        `yaml:"listen_addr"`   // Default: 127.0.0.1:8080
	APIKey       string        `yaml:"api_key"`       // Empty = no key required
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // Default: 60s
	IdleTimeout  time.Duration `yaml:"idle_timeout"`  // Default: 60s
	AllowedIPs   []string      `yaml:"allowed_ips"`   // IP addresses/CIDRs (empty = allow all)
}

// PollerConfig contains background refresh settings
type PollerConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Interval           time.Duration `yaml:"interval"`            // Default: 15s
	RefreshConcurrency int           `yaml:"refresh_concurrency"` // Default: 4
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // Default: :9090
	Path       string   `yaml:"path"`        // Default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// LoadEnv loads .env style files into the process environment.
// Missing files are ignored; with no arguments ".env" is tried.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// Load loads configuration from a YAML file. An empty path yields the
// defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		c.Credentials.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		c.Remote.BaseURL = v
	}
}

// DefaultStorePath returns the per-user credential store location
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "credentials.db"
	}
	return filepath.Join(dir, "campaignctl", "credentials.db")
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	c.Remote.BaseURL = strings.TrimRight(c.Remote.BaseURL, "/")
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 30 * time.Second
	}

	if c.Credentials.StorePath == "" {
		c.Credentials.StorePath = DefaultStorePath()
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = "127.0.0.1:8080"
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 60 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Poller.Interval == 0 {
		c.Poller.Interval = 15 * time.Second
	}
	if c.Poller.RefreshConcurrency == 0 {
		c.Poller.RefreshConcurrency = 4
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required (or set %s)", EnvBaseURL)
	}
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid remote.base_url: %q (must be an http or https URL)", c.Remote.BaseURL)
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout must not be negative")
	}

	if c.Poller.Enabled && c.Poller.Interval < time.Second {
		return fmt.Errorf("poller.interval must be at least 1s, got %s", c.Poller.Interval)
	}
	if c.Poller.RefreshConcurrency < 0 {
		return fmt.Errorf("poller.refresh_concurrency must not be negative")
	}

	if _, err := ipfilter.ParsePrefixes(c.API.AllowedIPs); err != nil {
		return fmt.Errorf("api.allowed_ips: %w", err)
	}
	if _, err := ipfilter.ParsePrefixes(c.Metrics.AllowedIPs); err != nil {
		return fmt.Errorf("metrics.allowed_ips: %w", err)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /: %s", c.Metrics.Path)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}
