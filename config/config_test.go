package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/scalarorg/ibc-tracker/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
env: testnet
mongo:
  uri: mongodb://localhost:27017
gateways:
  - chain_id: cosmoshub-4
    lcd_url: https://lcd.cosmoshub.example/
  - chain_id: osmosis-1
    lcd_url: https://lcd.osmosis.example
sweeper:
  interval: 30s
redis:
  addr: localhost:6379
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadAppliesDefaults(t *testing.T) {
	cfg, err := config.Read(viper.New(), writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "testnet", cfg.Environment)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "ibc_tracker", cfg.Mongo.Database)
	assert.Equal(t, 10*time.Second, cfg.Mongo.ConnectTimeout)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, int64(100), cfg.Sweeper.BatchSize)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, map[string]string{
		"cosmoshub-4": "https://lcd.cosmoshub.example",
		"osmosis-1":   "https://lcd.osmosis.example",
	}, cfg.GatewayURLs())
}

func TestReadEnvOverride(t *testing.T) {
	t.Setenv("MONGO_DATABASE", "override_db")
	cfg, err := config.Read(viper.New(), writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "override_db", cfg.Mongo.Database)
}

func TestReadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing mongo uri", content: "env: local\n"},
		{name: "bad gateway url", content: "mongo:\n  uri: mongodb://localhost\ngateways:\n  - chain_id: a\n    lcd_url: not a url\n"},
		{name: "tracing without endpoint", content: "mongo:\n  uri: mongodb://localhost\ntracing:\n  enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Read(viper.New(), writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}
}

func TestLoadEnvSkipsMissingFile(t *testing.T) {
	require.NoError(t, config.LoadEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("IBC_TRACKER_TEST_KEY=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("IBC_TRACKER_TEST_KEY") })
	require.NoError(t, config.LoadEnv(path))
	assert.Equal(t, "loaded", os.Getenv("IBC_TRACKER_TEST_KEY"))
}

func TestNewLoggerLevel(t *testing.T) {
	config.NewLogger("test", config.LogConfig{Level: "debug"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	config.NewLogger("test", config.LogConfig{Level: "bogus"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
