package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverlaysYAMLOnDefaults(t *testing.T) {
	path := writeFile(t, `
symbols: [ETH, SOL]
scan_interval: 2s
router:
  max_alerts_per_hour: 20
anomaly:
  thresholds:
    price.current: 15
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH", "SOL"}, c.Symbols)
	assert.Equal(t, 2*time.Second, c.ScanInterval)
	assert.Equal(t, 20, c.Router.MaxAlertsPerHour)
	assert.Equal(t, 10*time.Second, c.Router.MinAlertInterval, "untouched keys keep defaults")
	assert.Equal(t, 15.0, c.Anomaly.Thresholds["price.current"])
	assert.Equal(t, 8080, c.HTTP.Port)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("WATCHDOG_SYMBOLS", "BTC,ETH")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("WATCHDOG_ENV", "staging")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH"}, c.Symbols)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "staging", c.App.Environment)
}

func TestValidateRejectsInconsistentIngest(t *testing.T) {
	c := Default()
	c.Ingest.Type = "kafka"
	assert.Error(t, c.Validate())

	c = Default()
	c.Ingest.Type = "websocket"
	assert.Error(t, c.Validate())
	c.Feed.URL = "ws://localhost:9000/snapshots"
	assert.NoError(t, c.Validate())

	c = Default()
	c.Symbols = nil
	assert.Error(t, c.Validate())
}

func TestLoadRejectsBadDetectorConfig(t *testing.T) {
	path := writeFile(t, `
router:
  max_alerts_per_hour: 0
`)
	_, err := Load(path)
	assert.Error(t, err)
}
