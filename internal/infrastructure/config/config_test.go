package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "plant-7"
  timezone: "Asia/Tokyo"
storage:
  backend: "file"
  data_dir: "/srv/solar"
registry:
  devices_file: "/etc/solarwatch/devices.yaml"
ingest:
  clock_skew_tolerance: 48h
watchdog:
  interval: 5m
  default_grace_sec: 600
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
api:
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "plant-7", cfg.Site.ID)
	assert.Equal(t, "/srv/solar", cfg.Storage.DataDir)
	assert.Equal(t, "/etc/solarwatch/devices.yaml", cfg.Registry.DevicesFile)
	assert.Equal(t, 48*time.Hour, cfg.Ingest.ClockSkewTolerance)
	assert.Equal(t, 5*time.Minute, cfg.Watchdog.Interval)
	assert.Equal(t, int64(600), cfg.Watchdog.DefaultGraceSec)
	assert.Equal(t, "broker.local", cfg.MQTT.Broker.Host)
	assert.Equal(t, 9090, cfg.API.Port)

	// Untouched sections keep their defaults.
	assert.Equal(t, "1.00", cfg.Ingest.ProtocolVersion)
	assert.Equal(t, int64(60), cfg.Watchdog.MinGraceSec)
	assert.Equal(t, "alert_recipients.json", cfg.Alerts.RecipientsKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
site:
  id: ""
storage:
  backend: "postgres"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site.id is required")
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: "/from/file"
`)
	t.Setenv("SOLARWATCH_DATA_DIR", "/from/env")
	t.Setenv("SOLARWATCH_STORAGE_BACKEND", "sqlite")
	t.Setenv("SOLARWATCH_DATABASE_PATH", "/from/env/solar.db")
	t.Setenv("SOLARWATCH_SMTP_PASSWORD", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.Storage.DataDir)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/from/env/solar.db", cfg.Database.Path)
	assert.Equal(t, "hunter2", cfg.Alerts.SMTP.Password)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			modify: func(*Config) {},
		},
		{
			name:    "unknown timezone",
			modify:  func(c *Config) { c.Site.Timezone = "Mars/Olympus" },
			wantErr: "site.timezone",
		},
		{
			name:    "file backend without data dir",
			modify:  func(c *Config) { c.Storage.DataDir = "" },
			wantErr: "storage.data_dir",
		},
		{
			name: "sqlite backend without database path",
			modify: func(c *Config) {
				c.Storage.Backend = BackendSQLite
				c.Database.Path = ""
			},
			wantErr: "database.path",
		},
		{
			name:    "zero skew tolerance",
			modify:  func(c *Config) { c.Ingest.ClockSkewTolerance = 0 },
			wantErr: "clock_skew_tolerance",
		},
		{
			name:    "smtp enabled without host",
			modify:  func(c *Config) { c.Alerts.SMTP.Enabled = true },
			wantErr: "alerts.smtp.host",
		},
		{
			name:    "mqtt alerts without mqtt",
			modify:  func(c *Config) { c.Alerts.MQTT.Enabled = true },
			wantErr: "alerts.mqtt",
		},
		{
			name:    "mqtt ingest without mqtt",
			modify:  func(c *Config) { c.MQTT.IngestEnabled = true },
			wantErr: "mqtt.ingest_enabled",
		},
		{
			name:    "invalid qos",
			modify:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid port",
			modify:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "relative metrics path",
			modify:  func(c *Config) { c.Metrics.Path = "metrics" },
			wantErr: "metrics.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 10*time.Second, cfg.GetLockTimeout())
	assert.Equal(t, 30*time.Second, cfg.API.ReadTimeout())
	assert.Equal(t, 30*time.Second, cfg.API.WriteTimeout())
	assert.Equal(t, 60*time.Second, cfg.API.IdleTimeout())
}

func TestLocation(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "Asia/Tokyo", cfg.Location().String())

	cfg.Site.Timezone = "not/a/zone"
	assert.Equal(t, time.UTC, cfg.Location())
}
