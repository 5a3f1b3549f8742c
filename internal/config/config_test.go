package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8085", cfg.GetServerAddr())
	assert.Equal(t, "epson", cfg.Printer.Driver)
	assert.Equal(t, 29, cfg.Printer.DefaultSeries)
	assert.Equal(t, 0, cfg.Printer.DefaultLanguage)
	assert.Equal(t, 15*time.Second, cfg.Printer.ConnectTimeout)
	assert.Equal(t, 2, cfg.Printer.DrawerPin)
	assert.Equal(t, 50*time.Millisecond, cfg.Printer.DrawerPulse)
	assert.Equal(t, []int{9100}, cfg.Discovery.TCP.Ports)
	assert.Equal(t, 8*time.Second, cfg.Discovery.ScanTimeout)
	assert.Greater(t, cfg.Discovery.ScanTimeout, cfg.Discovery.Bluetooth.ScanWindow)
	assert.Equal(t, []string{"04B8"}, cfg.Discovery.USB.VendorIDs)
	assert.Equal(t, 115200, cfg.Transport.Serial.BaudRate)
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsDebugEnabled())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9001"
printer:
  default_series: 10
  connect_timeout: 5s
  drawer_pin: 5
discovery:
  tcp:
    subnets: ["192.0.2.0/28"]
app:
  environment: production
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9001", cfg.Server.Port)
	assert.Equal(t, 10, cfg.Printer.DefaultSeries)
	assert.Equal(t, 5*time.Second, cfg.Printer.ConnectTimeout)
	assert.Equal(t, 5, cfg.Printer.DrawerPin)
	assert.Equal(t, []string{"192.0.2.0/28"}, cfg.Discovery.TCP.Subnets)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDebugEnabled())
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("PRINTER_BRIDGE_SERVER_PORT", "9100")
	t.Setenv("PRINTER_BRIDGE_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"series out of range", "printer:\n  default_series: 30\n"},
		{"language out of range", "printer:\n  default_language: 7\n"},
		{"drawer pin", "printer:\n  drawer_pin: 3\n"},
		{"connect timeout", "printer:\n  connect_timeout: 0s\n"},
		{"environment", "app:\n  environment: qa\n"},
		{"log level", "logging:\n  level: verbose\n"},
		{"queue size", "dispatch:\n  queue_size: 0\n"},
		{"scan timeout within scan window", "discovery:\n  scan_timeout: 5s\n  bluetooth:\n    scan_window: 5s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorContains(t, err, "config validation failed")
		})
	}
}
