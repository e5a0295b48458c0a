// Package config loads the server's YAML configuration with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Cache   Cache   `yaml:"cache"`
	Engine  Engine  `yaml:"engine"`
	Logging Logging `yaml:"logging"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr formats the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Storage selects the candle store backend and its connection strings.
type Storage struct {
	// Backend is "memory", "clickhouse", or "postgres".
	Backend       string `yaml:"backend"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	PostgresDSN   string `yaml:"postgres_dsn"`
}

// Duration parses YAML strings like "10m" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Cache bounds the in-memory run result cache.
type Cache struct {
	MaxEntries int      `yaml:"max_entries"`
	TTL        Duration `yaml:"ttl"`
}

// Engine holds replay and reduction parameters.
type Engine struct {
	// RiskFreeRate is the annualized rate for Sharpe and Sortino.
	RiskFreeRate float64 `yaml:"risk_free_rate"`
	// EquityStride samples the equity curve every N bars.
	EquityStride int `yaml:"equity_stride"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:  Server{Host: "0.0.0.0", Port: 8080},
		Storage: Storage{Backend: "memory"},
		Cache:   Cache{MaxEntries: 100, TTL: Duration(time.Hour)},
		Engine:  Engine{EquityStride: 10},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "clickhouse":
		if c.Storage.ClickHouseDSN == "" {
			return fmt.Errorf("clickhouse backend requires clickhouse_dsn")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres backend requires postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding fields when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FXBT_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("FXBT_CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickHouseDSN = v
	}
	if v := os.Getenv("FXBT_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("FXBT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
