package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream_layer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	require.Equal(t, 8090, cfg.Server.Port)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, 30, cfg.World.InitTimeoutSeconds)
	require.Equal(t, "memory", cfg.Journal.Driver)
	require.True(t, cfg.Automation.Enabled)
	require.False(t, cfg.Intelligence.Enabled)
	require.True(t, cfg.Intelligence.AnomalyDetectionEnabled())
	require.True(t, cfg.Intelligence.PredictiveAnalysisEnabled())
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
world:
  auto_connect: true
  wallet_refresh_seconds: 15
intelligence:
  enabled: true
  anomaly_detection: false
automation:
  tasks:
    - id: cleanup
      schedule: "@every 1h"
      script: "function run() { return true }"
`)
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	require.Equal(t, 9000, cfg.Server.Port)
	require.True(t, cfg.World.AutoConnect)
	require.Equal(t, 15, cfg.World.WalletRefreshSeconds)
	// untouched sections keep defaults
	require.Equal(t, 30, cfg.World.InitTimeoutSeconds)
	require.Equal(t, "memory", cfg.Preferences.Driver)

	require.True(t, cfg.Intelligence.Enabled)
	require.False(t, cfg.Intelligence.AnomalyDetectionEnabled())
	require.True(t, cfg.Intelligence.PredictiveAnalysisEnabled())

	require.Len(t, cfg.Automation.Tasks, 1)
	require.Equal(t, "cleanup", cfg.Automation.Tasks[0].ID)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("STREAM_SERVER_PORT", "9100")
	t.Setenv("STREAM_LOG_LEVEL", "debug")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"port":            func(c *Config) { c.Server.Port = 0 },
		"init timeout":    func(c *Config) { c.World.InitTimeoutSeconds = 0 },
		"queue capacity":  func(c *Config) { c.Automation.QueueCapacity = 0 },
		"journal driver":  func(c *Config) { c.Journal.Driver = "dynamo" },
		"journal dsn":     func(c *Config) { c.Journal.Driver = "postgres"; c.Journal.DSN = "" },
		"prefs driver":    func(c *Config) { c.Preferences.Driver = "etcd" },
		"prefs redis":     func(c *Config) { c.Preferences.Driver = "redis"; c.Preferences.RedisAddr = "" },
		"task without id": func(c *Config) { c.Automation.Tasks = []TaskConfig{{Schedule: "@hourly", Script: "1"}} },
		"task duplicate": func(c *Config) {
			c.Automation.Tasks = []TaskConfig{
				{ID: "x", Schedule: "@hourly", Script: "1"},
				{ID: "x", Schedule: "@daily", Script: "2"},
			}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
