// Package config provides configuration loading for the Comanda server.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BackendKind selects the primary backend at startup. It is never switched
// at runtime; only the reachability state changes.
type BackendKind string

const (
	BackendRemote BackendKind = "remote"
	BackendLocal  BackendKind = "local"
)

// Config holds the full server configuration.
type Config struct {
	Backend       BackendKind   `yaml:"backend"`
	DataDir       string        `yaml:"data_dir"`
	ListenAddr    string        `yaml:"listen_addr"`
	LogLevel      string        `yaml:"log_level"`
	RemoteURL     string        `yaml:"remote_url"`
	RemoteAPIKey  string        `yaml:"remote_api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Connectivity probing and queue reconciliation
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// Cache lifecycle
	CacheVersion   string   `yaml:"cache_version"`
	PrecacheURLs   []string `yaml:"precache_urls"`
	AppShellURL    string   `yaml:"app_shell_url"`
	AssetOrigin    string   `yaml:"asset_origin"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Backend:        BackendRemote,
		DataDir:        "data",
		ListenAddr:     ":8080",
		LogLevel:       "info",
		RequestTimeout: 12 * time.Second,
		ProbeInterval:  30 * time.Second,
		CacheVersion:   "v1",
		AppShellURL:    "/index.html",
		CleanupInterval: 6 * time.Hour,
	}
}

// Load builds the configuration from defaults, an optional YAML file, a
// .env file if present, and environment variable overrides, in that order.
func Load(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// .env is optional; missing file is not an error
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UnmarshalYAML decodes the config from YAML, parsing durations from their
// string form ("12s") and leaving defaults in place for unset keys.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Backend         string   `yaml:"backend"`
		DataDir         string   `yaml:"data_dir"`
		ListenAddr      string   `yaml:"listen_addr"`
		LogLevel        string   `yaml:"log_level"`
		RemoteURL       string   `yaml:"remote_url"`
		RemoteAPIKey    string   `yaml:"remote_api_key"`
		RequestTimeout  string   `yaml:"request_timeout"`
		ProbeInterval   string   `yaml:"probe_interval"`
		CacheVersion    string   `yaml:"cache_version"`
		PrecacheURLs    []string `yaml:"precache_urls"`
		AppShellURL     string   `yaml:"app_shell_url"`
		AssetOrigin     string   `yaml:"asset_origin"`
		CleanupInterval string   `yaml:"cleanup_interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Backend != "" {
		c.Backend = BackendKind(strings.ToLower(raw.Backend))
	}
	if raw.DataDir != "" {
		c.DataDir = raw.DataDir
	}
	if raw.ListenAddr != "" {
		c.ListenAddr = raw.ListenAddr
	}
	if raw.LogLevel != "" {
		c.LogLevel = raw.LogLevel
	}
	if raw.RemoteURL != "" {
		c.RemoteURL = raw.RemoteURL
	}
	if raw.RemoteAPIKey != "" {
		c.RemoteAPIKey = raw.RemoteAPIKey
	}
	if raw.CacheVersion != "" {
		c.CacheVersion = raw.CacheVersion
	}
	if len(raw.PrecacheURLs) > 0 {
		c.PrecacheURLs = raw.PrecacheURLs
	}
	if raw.AppShellURL != "" {
		c.AppShellURL = raw.AppShellURL
	}
	if raw.AssetOrigin != "" {
		c.AssetOrigin = raw.AssetOrigin
	}

	for _, d := range []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{raw.RequestTimeout, &c.RequestTimeout, "request_timeout"},
		{raw.ProbeInterval, &c.ProbeInterval, "probe_interval"},
		{raw.CleanupInterval, &c.CleanupInterval, "cleanup_interval"},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

// applyEnv overrides config fields from COMANDA_* environment variables.
// A malformed duration value is an error, same as in the YAML file.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("COMANDA_BACKEND"); v != "" {
		cfg.Backend = BackendKind(strings.ToLower(v))
	}
	if v := os.Getenv("COMANDA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("COMANDA_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("COMANDA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("COMANDA_REMOTE_URL"); v != "" {
		cfg.RemoteURL = v
	}
	if v := os.Getenv("COMANDA_REMOTE_API_KEY"); v != "" {
		cfg.RemoteAPIKey = v
	}
	if v := os.Getenv("COMANDA_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse COMANDA_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("COMANDA_PROBE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse COMANDA_PROBE_INTERVAL: %w", err)
		}
		cfg.ProbeInterval = d
	}
	if v := os.Getenv("COMANDA_CACHE_VERSION"); v != "" {
		cfg.CacheVersion = v
	}
	if v := os.Getenv("COMANDA_PRECACHE_URLS"); v != "" {
		cfg.PrecacheURLs = splitList(v)
	}
	if v := os.Getenv("COMANDA_APP_SHELL_URL"); v != "" {
		cfg.AppShellURL = v
	}
	if v := os.Getenv("COMANDA_ASSET_ORIGIN"); v != "" {
		cfg.AssetOrigin = v
	}
	if v := os.Getenv("COMANDA_CLEANUP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse COMANDA_CLEANUP_INTERVAL: %w", err)
		}
		cfg.CleanupInterval = d
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRemote, BackendLocal:
	default:
		return fmt.Errorf("invalid backend kind %q", c.Backend)
	}
	if c.Backend == BackendRemote && c.RemoteURL == "" {
		return fmt.Errorf("remote backend selected but remote_url is empty")
	}
	if c.RequestTimeout < 10*time.Second || c.RequestTimeout > 15*time.Second {
		// the band keeps timeouts indistinguishable from network failure
		// without stalling the UI
		return fmt.Errorf("request_timeout %s outside the 10s..15s band", c.RequestTimeout)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is empty")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
