package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/srg/blewatch/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := config.Default()

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "blewatch.db", cfg.Database)
	require.Equal(t, 360, cfg.HistoryCapacity)

	require.Equal(t, 10*time.Second, cfg.Scan.ScanDuration)
	require.True(t, cfg.Scan.AllowDuplicates)
	require.Equal(t, "balanced", cfg.Scan.ScanMode)

	require.True(t, cfg.Battery.DutyCycling)
	require.Equal(t, 10*time.Second, cfg.Battery.ScanDuration)
	require.Equal(t, 20*time.Second, cfg.Battery.RestDuration)
	require.Equal(t, -85, cfg.Battery.MinRSSI)

	require.NoError(t, cfg.Validate())
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
database: /tmp/history.db
battery:
  scan_duration: 5s
  rest_duration: 55s
  min_rssi: -75
scan:
  service_uuids: ["180f", "180d"]
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "/tmp/history.db", cfg.Database)
	require.Equal(t, 5*time.Second, cfg.Battery.ScanDuration)
	require.Equal(t, 55*time.Second, cfg.Battery.RestDuration)
	require.Equal(t, -75, cfg.Battery.MinRSSI)
	require.Equal(t, []string{"180f", "180d"}, cfg.Scan.ServiceUUIDs)

	// Untouched keys keep their defaults.
	require.Equal(t, 360, cfg.HistoryCapacity)
	require.True(t, cfg.Battery.DutyCycling)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "log_level: [not, a, string\n")
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown log level", func(c *config.Config) { c.LogLevel = "loud" }},
		{"zero history capacity", func(c *config.Config) { c.HistoryCapacity = 0 }},
		{"negative scan duration", func(c *config.Config) { c.Scan.ScanDuration = -time.Second }},
		{"invalid battery profile", func(c *config.Config) { c.Battery.MinRSSI = 10 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestNewLoggerHonorsLevel(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "debug"

	logger := cfg.NewLogger()
	require.Equal(t, logrus.DebugLevel, logger.GetLevel())
}
