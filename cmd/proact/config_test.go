package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := isolateHome(t)

	cfg, err := loadConfig(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".proact", "proact.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.Sweep.Enabled)
	assert.Equal(t, "0 3 * * *", cfg.Sweep.Schedule)
	assert.Equal(t, 90*24*time.Hour, cfg.Sweep.Retention)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".proact")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(`
db_path: /tmp/cycles.db
log_format: text
http_addr: ":9464"
sweep:
  schedule: "@hourly"
  retention: 48h
`), 0o644))

	cfg, err := loadConfig(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cycles.db", cfg.DBPath)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, ":9464", cfg.HTTPAddr)
	assert.Equal(t, "@hourly", cfg.Sweep.Schedule)
	assert.Equal(t, 48*time.Hour, cfg.Sweep.Retention)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "proact.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\nsweep:\n  enabled: true\n"), 0o644))

	t.Setenv("PROACT_LOG_LEVEL", "debug")
	t.Setenv("PROACT_SWEEP_ENABLED", "false")
	t.Setenv("PROACT_TRACING_ENDPOINT", "collector:4317")

	cfg, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Sweep.Enabled)
	assert.Equal(t, "collector:4317", cfg.Tracing.Endpoint)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	isolateHome(t)

	_, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		DBPath:    "proact.db",
		LogLevel:  "info",
		LogFormat: "json",
		Sweep:     SweepConfig{Enabled: true, Schedule: "0 3 * * *", Retention: time.Hour},
	}
	require.NoError(t, valid.validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no db", func(c *Config) { c.DBPath = "" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }},
		{"zero retention", func(c *Config) { c.Sweep.Retention = 0 }},
		{"bad schedule", func(c *Config) { c.Sweep.Schedule = "every day" }},
		{"tracing without endpoint", func(c *Config) { c.Tracing = TracingConfig{Enabled: true} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}

	disabled := valid
	disabled.Sweep = SweepConfig{}
	assert.NoError(t, disabled.validate(), "sweep settings are ignored when disabled")
}

func TestDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/var/lib/proact.db", "file:/var/lib/proact.db"},
		{"proact.db", "file:proact.db"},
		{"file:/var/lib/proact.db", "file:/var/lib/proact.db"},
		{"libsql://db.example.com", "libsql://db.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Config{DBPath: tt.path}.dsn())
		})
	}
}

func TestDBDir(t *testing.T) {
	assert.Equal(t, "/var/lib", dbDir("/var/lib/proact.db"))
	assert.Equal(t, "/var/lib", dbDir("file:/var/lib/proact.db"))
	assert.Equal(t, "", dbDir("proact.db"))
	assert.Equal(t, "", dbDir("libsql://db.example.com"))
}
