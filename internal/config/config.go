package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int `yaml:"port"`

	// AppViewURL is the base URL for Bluesky AppView XRPC calls.
	AppViewURL string `yaml:"appview_url"`

	// ReportersPath is the JSON file holding the tracked-account list with
	// resolved DIDs, maintained offline by cmd/resolve.
	ReportersPath string `yaml:"reporters_path"`

	// DefaultReporters is queried when a request names no reporters of its
	// own. When empty, the handles in the reporters file are used.
	DefaultReporters []string `yaml:"default_reporters"`

	// DefaultWindowDays is the recency window applied when a request has no
	// days parameter.
	DefaultWindowDays int `yaml:"default_window_days"`

	// MaxInFlight caps concurrent AppView calls per request.
	MaxInFlight int `yaml:"max_in_flight"`

	// Token is an optional bearer token for AppView calls, sourced from the
	// BLUESKY_TOKEN environment variable only. The public read endpoints
	// work without one; when unset the Authorization header is omitted.
	Token string `yaml:"-"`
}

// Load returns the built-in defaults overlaid with the YAML file at path (if
// path is non-empty) and then with environment variables. PORT overrides the
// listen port; BLUESKY_TOKEN supplies the optional AppView bearer token.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:              3000,
		AppViewURL:        "https://public.api.bsky.app/xrpc",
		ReportersPath:     "reporters.json",
		DefaultWindowDays: 7,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	if p := os.Getenv("PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = port
	}

	if t := os.Getenv("BLUESKY_TOKEN"); t != "" {
		cfg.Token = t
	}

	return cfg, nil
}

// DefaultWindow returns the default recency window as a duration.
func (c *Config) DefaultWindow() time.Duration {
	return time.Duration(c.DefaultWindowDays) * 24 * time.Hour
}
