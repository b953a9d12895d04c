// Package config provides configuration types and defaults for the soundboard.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// AppName names the cache bucket, config directory and cache directory.
const AppName = "creek-soundboard"

// Config holds all configuration options for the soundboard.
type Config struct {
	Origin      string        `mapstructure:"origin"`       // base URL the shell and catalog are served from
	CatalogPath string        `mapstructure:"catalog_path"` // path of the catalog document under Origin
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	Cache       CacheConfig   `mapstructure:"cache"`
	Audio       AudioConfig   `mapstructure:"audio"`
	UI          UIConfig      `mapstructure:"ui"`
	Theme       ThemeConfig   `mapstructure:"theme"`
	Log         LogConfig     `mapstructure:"log"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// CacheConfig configures the offline asset cache.
type CacheConfig struct {
	// Version is part of the bucket id. Bump it whenever Shell changes.
	Version uint   `mapstructure:"version"`
	Backend string `mapstructure:"backend"` // "sqlite", "redis" or "memory"
	Path    string `mapstructure:"path"`    // sqlite database file

	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`

	Shell            []string `mapstructure:"shell"`
	MediaConcurrency int      `mapstructure:"media_concurrency"`
}

// AudioConfig configures the OS-native audio backend.
type AudioConfig struct {
	// Player overrides player discovery, e.g. "ffplay" or "/usr/bin/paplay".
	Player             string `mapstructure:"player"`
	SpoolDir           string `mapstructure:"spool_dir"`
	PreloadConcurrency int    `mapstructure:"preload_concurrency"`
}

// UIConfig holds user interface options.
type UIConfig struct {
	Columns       int           `mapstructure:"columns"`
	ToastDuration time.Duration `mapstructure:"toast_duration"`
	ShowHelp      bool          `mapstructure:"show_help"`
}

// ThemeConfig selects the color theme.
type ThemeConfig struct {
	// Mode forces light or dark mode. If empty, uses terminal detection.
	// Valid values: "light", "dark", ""
	Mode string `mapstructure:"mode"`
}

// LogConfig configures the debug log file.
type LogConfig struct {
	File  string `mapstructure:"file"`
	Debug bool   `mapstructure:"debug"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"` // "file" or "otlp"
	File     string `mapstructure:"file"`
	Endpoint string `mapstructure:"endpoint"` // otlp grpc endpoint, host:port
}

// DefaultShell is the static asset list pre-cached at install.
func DefaultShell() []string {
	return []string{
		"/",
		"/index.html",
		"/style.css",
		"/app.js",
		"/manifest.json",
		"/sounds.json",
		"/icons/favicon.svg",
		"/icons/app-icon-192.svg",
		"/icons/app-icon-512.svg",
	}
}

// DefaultCacheDir returns ~/.cache/creek-soundboard (or the platform equivalent).
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(dir, AppName)
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	cacheDir := DefaultCacheDir()
	return Config{
		Origin:      "http://localhost:8000",
		CatalogPath: "/sounds.json",
		HTTPTimeout: 30 * time.Second,
		Cache: CacheConfig{
			Version:          2,
			Backend:          "sqlite",
			Path:             filepath.Join(cacheDir, "cache.db"),
			RedisAddr:        "localhost:6379",
			RedisPrefix:      AppName + ":",
			Shell:            DefaultShell(),
			MediaConcurrency: 4,
		},
		Audio: AudioConfig{
			SpoolDir:           filepath.Join(cacheDir, "spool"),
			PreloadConcurrency: 4,
		},
		UI: UIConfig{
			Columns:       4,
			ToastDuration: 5 * time.Second,
			ShowHelp:      true,
		},
		Log: LogConfig{
			File: filepath.Join(cacheDir, "debug.log"),
		},
		Tracing: TracingConfig{
			Exporter: "file",
			File:     filepath.Join(cacheDir, "traces.jsonl"),
			Endpoint: "localhost:4317",
		},
	}
}

// Validate checks configuration for errors.
func Validate(cfg Config) error {
	u, err := url.Parse(cfg.Origin)
	if err != nil {
		return fmt.Errorf("origin: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("origin %q: host is required", cfg.Origin)
		}
	case "file":
	default:
		return fmt.Errorf("origin %q: scheme must be http, https or file", cfg.Origin)
	}

	if cfg.CatalogPath == "" {
		return fmt.Errorf("catalog_path is required")
	}
	if cfg.Cache.Version == 0 {
		return fmt.Errorf("cache.version must be greater than zero")
	}
	switch cfg.Cache.Backend {
	case "sqlite":
		if cfg.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for the sqlite backend")
		}
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	case "memory":
	default:
		return fmt.Errorf("cache.backend %q: must be sqlite, redis or memory", cfg.Cache.Backend)
	}
	if len(cfg.Cache.Shell) == 0 {
		return fmt.Errorf("cache.shell must list at least one path")
	}
	if cfg.Cache.MediaConcurrency < 1 {
		return fmt.Errorf("cache.media_concurrency must be at least 1")
	}

	switch cfg.Theme.Mode {
	case "", "light", "dark":
	default:
		return fmt.Errorf("theme.mode %q: must be light, dark or empty", cfg.Theme.Mode)
	}
	if cfg.UI.Columns < 1 {
		return fmt.Errorf("ui.columns must be at least 1")
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Exporter {
		case "file", "otlp":
		default:
			return fmt.Errorf("tracing.exporter %q: must be file or otlp", cfg.Tracing.Exporter)
		}
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Creek Soundboard Configuration

# Where the soundboard shell and catalog are served from (http, https or file://)
origin: http://localhost:8000
catalog_path: /sounds.json
http_timeout: 30s

# Offline asset cache
cache:
  # Bump the version whenever the shell list changes; older buckets are
  # deleted when the new version activates.
  version: 2
  backend: sqlite        # sqlite, redis or memory
  # path: ~/.cache/creek-soundboard/cache.db
  # redis_addr: localhost:6379
  media_concurrency: 4
  # shell:
  #   - /
  #   - /index.html
  #   - /sounds.json

# Audio playback
audio:
  # player: ffplay       # override player discovery
  preload_concurrency: 4

ui:
  columns: 4
  toast_duration: 5s
  show_help: true

# Theme: light, dark, or empty to follow the terminal background
theme:
  mode: ""

log:
  debug: false
  # file: ~/.cache/creek-soundboard/debug.log

tracing:
  enabled: false
  exporter: file         # file or otlp
  # endpoint: localhost:4317
`
}
