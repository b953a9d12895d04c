package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()

	require.NoError(t, Validate(cfg))
	assert.Equal(t, uint(2), cfg.Cache.Version)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, "/sounds.json", cfg.CatalogPath)
	assert.Equal(t, 5*time.Second, cfg.UI.ToastDuration)
	assert.Equal(t, DefaultShell(), cfg.Cache.Shell)
}

func TestDefaultShell_ContainsCatalog(t *testing.T) {
	assert.Contains(t, DefaultShell(), "/sounds.json")
	assert.Contains(t, DefaultShell(), "/style.css")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"file origin", func(c *Config) { c.Origin = "file:///srv/soundboard" }, ""},
		{"bad scheme", func(c *Config) { c.Origin = "ftp://example.com" }, "scheme must be"},
		{"missing host", func(c *Config) { c.Origin = "http://" }, "host is required"},
		{"empty catalog path", func(c *Config) { c.CatalogPath = "" }, "catalog_path"},
		{"zero version", func(c *Config) { c.Cache.Version = 0 }, "cache.version"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "bolt" }, "cache.backend"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis"; c.Cache.RedisAddr = "" }, "redis_addr"},
		{"memory backend", func(c *Config) { c.Cache.Backend = "memory"; c.Cache.Path = "" }, ""},
		{"empty shell", func(c *Config) { c.Cache.Shell = nil }, "cache.shell"},
		{"zero concurrency", func(c *Config) { c.Cache.MediaConcurrency = 0 }, "media_concurrency"},
		{"bad theme", func(c *Config) { c.Theme.Mode = "sepia" }, "theme.mode"},
		{"zero columns", func(c *Config) { c.UI.Columns = 0 }, "ui.columns"},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "zipkin" }, "tracing.exporter"},
		{"disabled tracing ignores exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultConfigTemplate_Parses(t *testing.T) {
	cfg := loadConfigFromYAML(t, DefaultConfigTemplate())

	assert.Equal(t, "http://localhost:8000", cfg.Origin)
	assert.Equal(t, uint(2), cfg.Cache.Version)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, 4, cfg.UI.Columns)
	assert.Equal(t, 5*time.Second, cfg.UI.ToastDuration)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestConfig_ShellOverride(t *testing.T) {
	configYAML := `
cache:
  version: 3
  shell:
    - /
    - /sounds.json
`
	cfg := loadConfigFromYAML(t, configYAML)

	assert.Equal(t, uint(3), cfg.Cache.Version)
	assert.Equal(t, []string{"/", "/sounds.json"}, cfg.Cache.Shell)
}

// loadConfigFromYAML is a helper that loads a Config from a YAML string.
func loadConfigFromYAML(t *testing.T, yaml string) Config {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	err := os.WriteFile(configPath, []byte(yaml), 0644)
	require.NoError(t, err)

	v := viper.New()
	v.SetConfigFile(configPath)
	err = v.ReadInConfig()
	require.NoError(t, err)

	var cfg Config
	err = v.Unmarshal(&cfg)
	require.NoError(t, err)

	return cfg
}
