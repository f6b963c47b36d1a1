package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  kind: postgres
  dsn: postgres://etl@localhost/f1
  schema: formula_one
  meta_schema: etl_meta
source:
  timeout: 45s
metrics:
  backend: datadog
  tags: env:prod,service:f1etl
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Kind != "postgres" || cfg.Database.Schema != "formula_one" {
		t.Fatalf("database config %+v", cfg.Database)
	}
	if cfg.Source.Timeout != 45*time.Second {
		t.Fatalf("timeout %v", cfg.Source.Timeout)
	}
	if cfg.Source.MaxAttempts != 3 {
		t.Fatalf("max_attempts default %d", cfg.Source.MaxAttempts)
	}
	if cfg.Sync.BufferDays != 3 {
		t.Fatalf("buffer_days default %d", cfg.Sync.BufferDays)
	}
	if cfg.Metrics.Backend != "datadog" {
		t.Fatalf("metrics backend %q", cfg.Metrics.Backend)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log_level default %q", cfg.LogLevel)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("F1ETL_DATABASE_KIND", "mssql")
	t.Setenv("F1ETL_DATABASE_DSN", "sqlserver://sa@localhost?database=f1")
	t.Setenv("F1ETL_SYNC_BUFFER_DAYS", "5")
	t.Setenv("F1ETL_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Kind != "mssql" {
		t.Fatalf("kind %q", cfg.Database.Kind)
	}
	if cfg.Sync.BufferDays != 5 {
		t.Fatalf("buffer_days %d", cfg.Sync.BufferDays)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level %q", cfg.LogLevel)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown kind", "database:\n  kind: oracle\n  dsn: x\n"},
		{"missing dsn", "database:\n  kind: sqlite\n  dsn: \"\"\n"},
		{"unknown metrics backend", "database:\n  kind: sqlite\n  dsn: x\nmetrics:\n  backend: statsd\n"},
		{"negative buffer", "database:\n  kind: sqlite\n  dsn: x\nsync:\n  buffer_days: -1\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}
