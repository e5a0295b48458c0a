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

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("default backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("default addr = %q", cfg.Server.Addr())
	}
	if cfg.Cache.TTL.Std() != time.Hour {
		t.Errorf("default cache ttl = %v", cfg.Cache.TTL.Std())
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9000
storage:
  backend: postgres
  postgres_dsn: postgres://localhost/candles
cache:
  max_entries: 5
  ttl: 10m
engine:
  risk_free_rate: 0.02
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr() != "127.0.0.1:9000" {
		t.Errorf("addr = %q", cfg.Server.Addr())
	}
	if cfg.Storage.Backend != "postgres" {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.Cache.TTL.Std() != 10*time.Minute {
		t.Errorf("ttl = %v", cfg.Cache.TTL.Std())
	}
	if cfg.Engine.RiskFreeRate != 0.02 {
		t.Errorf("risk free rate = %v", cfg.Engine.RiskFreeRate)
	}
	// Untouched sections keep defaults.
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: memory
`)
	t.Setenv("FXBT_STORAGE_BACKEND", "clickhouse")
	t.Setenv("FXBT_CLICKHOUSE_DSN", "clickhouse://localhost:9000/candles")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != "clickhouse" {
		t.Errorf("backend = %q, want clickhouse", cfg.Storage.Backend)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown backend", "storage:\n  backend: sqlite\n"},
		{"clickhouse without dsn", "storage:\n  backend: clickhouse\n"},
		{"postgres without dsn", "storage:\n  backend: postgres\n"},
		{"bad port", "server:\n  port: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
