// Package config loads pipeline configuration from an optional YAML file plus
// F1ETL_* environment overrides (F1ETL_DATABASE_DSN, F1ETL_LOG_LEVEL, ...).
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	// Kind selects the warehouse backend: postgres, sqlite or mssql.
	Kind       string `mapstructure:"kind"`
	DSN        string `mapstructure:"dsn"`
	Schema     string `mapstructure:"schema"`
	MetaSchema string `mapstructure:"meta_schema"`
}

type SourceConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	DumpIndexURL string        `mapstructure:"dump_index_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

type SyncConfig struct {
	// BufferDays is how long after an event before its results are trusted.
	BufferDays int `mapstructure:"buffer_days"`
}

type MetricsConfig struct {
	// Backend is "datadog" or "none".
	Backend string `mapstructure:"backend"`
	JobName string `mapstructure:"job_name"`
	Tags    string `mapstructure:"tags"`
}

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Source   SourceConfig   `mapstructure:"source"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	LogLevel string         `mapstructure:"log_level"`
}

// Load reads path (or ./config.yaml when path is empty) and applies
// environment overrides. A missing default config file is fine; environment
// variables alone can carry the full configuration.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("F1ETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.kind", "sqlite")
	v.SetDefault("database.dsn", "f1_warehouse.db")
	v.SetDefault("database.schema", "")
	v.SetDefault("database.meta_schema", "")
	v.SetDefault("source.base_url", "")
	v.SetDefault("source.dump_index_url", "")
	v.SetDefault("source.timeout", "30s")
	v.SetDefault("source.max_attempts", 3)
	v.SetDefault("sync.buffer_days", 3)
	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.job_name", "f1etl")
	v.SetDefault("log_level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: read %s", path)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "config: read config.yaml")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: unmarshal")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Kind {
	case "postgres", "sqlite", "mssql":
	case "":
		return errors.New("config: database.kind must be set")
	default:
		return errors.Errorf("config: unsupported database.kind %q", c.Database.Kind)
	}
	if c.Database.DSN == "" {
		return errors.New("config: database.dsn must be set")
	}
	switch c.Metrics.Backend {
	case "datadog", "none", "":
	default:
		return errors.Errorf("config: unsupported metrics.backend %q", c.Metrics.Backend)
	}
	if c.Sync.BufferDays < 0 {
		return errors.New("config: sync.buffer_days must be >= 0")
	}
	return nil
}
