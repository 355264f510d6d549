package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rendis/proact/internal/logging"
	"github.com/rendis/proact/internal/scheduler"
)

// Config holds all proact configuration.
// Priority: flags > PROACT_* env vars > settings.yaml > defaults.
type Config struct {
	DBPath       string        `mapstructure:"db_path"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`
	HTTPAddr     string        `mapstructure:"http_addr"`
	PoliciesPath string        `mapstructure:"policies_path"`
	Sweep        SweepConfig   `mapstructure:"sweep"`
	Tracing      TracingConfig `mapstructure:"tracing"`
}

// SweepConfig controls the retention sweep.
type SweepConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Schedule  string        `mapstructure:"schedule"`
	Retention time.Duration `mapstructure:"retention"`
}

// TracingConfig controls OTLP span export.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

func proactDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".proact"
	}
	return filepath.Join(home, ".proact")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", filepath.Join(proactDir(), "proact.db"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("http_addr", "")
	v.SetDefault("policies_path", "")
	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.schedule", scheduler.DefaultSchedule)
	v.SetDefault("sweep.retention", 90*24*time.Hour)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
}

// loadConfig reads configuration into v. An explicit path must exist; the
// default settings.yaml is optional.
func loadConfig(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
		v.AddConfigPath(proactDir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("PROACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log_format %q: want json or text", c.LogFormat)
	}
	if c.Sweep.Enabled {
		if c.Sweep.Retention <= 0 {
			return fmt.Errorf("sweep.retention must be positive, got %s", c.Sweep.Retention)
		}
		if _, err := scheduler.ParseSchedule(c.Sweep.Schedule); err != nil {
			return fmt.Errorf("sweep.schedule: %w", err)
		}
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	return nil
}

// dsn turns a plain path into the file URI libSQL expects.
func (c Config) dsn() string {
	if strings.Contains(c.DBPath, ":") && !filepath.IsAbs(c.DBPath) {
		return c.DBPath
	}
	return "file:" + c.DBPath
}

// dbDir returns the directory of a local database path, or "" for remote URLs.
func dbDir(path string) string {
	if strings.Contains(path, "://") {
		return ""
	}
	path = strings.TrimPrefix(path, "file:")
	if path == "" || path == ":memory:" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}
