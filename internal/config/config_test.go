package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legacore/legacore/control-plane/internal/config"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Router.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Router.Timeout)
	assert.Equal(t, []string{"openai", "groq"}, cfg.Router.BalancedPair)
	assert.Equal(t, "legacore-control-plane", cfg.Telemetry.ServiceName)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Zero(t, cfg.Retention.ActivityTTL)
	assert.Equal(t, time.Hour, cfg.Retention.Interval)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"LEGACORE_PORT":                      "9090",
		"LEGACORE_LOG_FORMAT":                "json",
		"LEGACORE_STORE_DRIVER":              "SQLite",
		"LEGACORE_STORE_DSN":                 "/tmp/x.db",
		"LEGACORE_ROUTER_MAX_RETRIES":        "5",
		"LEGACORE_ROUTER_TIMEOUT":            "2s",
		"LEGACORE_ROUTER_PREFERRED_PROVIDER": "groq",
		"LEGACORE_ROUTER_LOAD_BALANCING":     "true",
		"LEGACORE_ROUTER_BASE_URLS":          "openai=http://proxy:8080/v1",
		"GROQ_API_KEY":                       "gsk_abcdefghijklmnopqrstuvwxyz",
		"GROK_API_KEY":                       "grok_abcdefghijklmnopqrstuvwxyz",
		"XAI_ENABLED":                        "false",
		"SEGMENT_WRITE_KEY":                  "wk",
		"LEGACORE_RETENTION_ACTIVITY_TTL":    "720h",
	})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/x.db", cfg.StoreOptions().DSN)
	assert.Equal(t, 5, cfg.Router.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Router.Timeout)
	assert.Equal(t, "groq", cfg.Router.PreferredProvider)
	assert.True(t, cfg.Router.LoadBalancing)
	assert.Equal(t, map[string]string{"openai": "http://proxy:8080/v1"}, cfg.Router.BaseURLs)
	assert.Equal(t, "gsk_abcdefghijklmnopqrstuvwxyz", cfg.Credentials.GroqPrimary)
	assert.Equal(t, "grok_abcdefghijklmnopqrstuvwxyz", cfg.Credentials.GrokKey)
	assert.Equal(t, "false", cfg.Credentials.XAIEnabled)
	assert.Equal(t, "wk", cfg.Analytics.SegmentWriteKey)
	assert.Equal(t, 720*time.Hour, cfg.Retention.ActivityTTL)
}

func TestLoadFrom_Invalid(t *testing.T) {
	_, err := config.LoadFrom(map[string]string{"LEGACORE_STORE_DRIVER": "mongo"})
	assert.Error(t, err)

	_, err = config.LoadFrom(map[string]string{"LEGACORE_STORE_DRIVER": "postgres"})
	assert.Error(t, err)

	_, err = config.LoadFrom(map[string]string{"LEGACORE_PORT": "not-a-number"})
	assert.Error(t, err)

	_, err = config.LoadFrom(map[string]string{"LEGACORE_PORT": "70000"})
	assert.Error(t, err)
}

func TestLoadFrom_SQLiteDefaultsDataDir(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{"LEGACORE_STORE_DRIVER": "sqlite"})
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Store.DataDir)
}
