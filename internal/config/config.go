// Package config loads the control plane configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/legacore/legacore/control-plane/internal/credentials"
	"github.com/legacore/legacore/control-plane/internal/router"
	"github.com/legacore/legacore/control-plane/internal/store"
)

// Config holds all configuration for the LEGACORE control plane.
type Config struct {
	Port    int    `env:"LEGACORE_PORT" envDefault:"8080"`
	Version string `env:"LEGACORE_VERSION" envDefault:"1.0.0"`

	ShutdownTimeout time.Duration `env:"LEGACORE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"LEGACORE_CORS_ORIGINS" envDefault:"*" envSeparator:","`

	// AgentsDir is an optional overlay directory of agent YAML files.
	AgentsDir string `env:"LEGACORE_AGENTS_DIR"`

	Log       LogConfig       `envPrefix:"LEGACORE_LOG_"`
	Store     StoreConfig     `envPrefix:"LEGACORE_STORE_"`
	Retention RetentionConfig `envPrefix:"LEGACORE_RETENTION_"`
	Telemetry TelemetryConfig
	Analytics AnalyticsConfig
	Router    router.Config `envPrefix:"LEGACORE_ROUTER_"`

	Credentials credentials.Sources
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"console"` // console | json
}

type StoreConfig struct {
	Driver  string `env:"DRIVER" envDefault:"memory"` // memory | sqlite | postgres
	DSN     string `env:"DSN"`
	DataDir string `env:"DATA_DIR"`
}

// RetentionConfig drives the activity log janitor. A zero ActivityTTL
// keeps activity forever.
type RetentionConfig struct {
	ActivityTTL time.Duration `env:"ACTIVITY_TTL" envDefault:"0s"`
	Interval    time.Duration `env:"INTERVAL" envDefault:"1h"`
	Archive     bool          `env:"ARCHIVE" envDefault:"false"`
	ArchiveDir  string        `env:"ARCHIVE_DIR"`
	Compress    bool          `env:"ARCHIVE_COMPRESS" envDefault:"true"`
}

type TelemetryConfig struct {
	Enabled      bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"legacore-control-plane"`
}

type AnalyticsConfig struct {
	SegmentWriteKey string `env:"SEGMENT_WRITE_KEY"`
	SegmentEndpoint string `env:"SEGMENT_ENDPOINT"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from environ instead of the process
// environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch cfg.Store.Driver {
	case store.DriverMemory, store.DriverSQLite:
	case store.DriverPostgres:
		if cfg.Store.DSN == "" {
			return nil, fmt.Errorf("LEGACORE_STORE_DSN is required when LEGACORE_STORE_DRIVER is postgres")
		}
	default:
		return nil, fmt.Errorf("unknown LEGACORE_STORE_DRIVER %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == store.DriverSQLite && cfg.Store.DSN == "" && cfg.Store.DataDir == "" {
		cfg.Store.DataDir = defaultDataDir()
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid LEGACORE_PORT %d", cfg.Port)
	}
	return cfg, nil
}

// StoreOptions converts the store settings for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:  c.Store.Driver,
		DSN:     c.Store.DSN,
		DataDir: c.Store.DataDir,
	}
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".legacore"
	}
	return filepath.Join(home, ".legacore")
}
