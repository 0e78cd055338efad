package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend identifiers.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the root configuration structure for SolarWatch Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Registry RegistryConfig `yaml:"registry"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Timezone decides which calendar month a sample belongs to and how
	// ISO timestamps are rendered. Changing it on a live site re-partitions
	// samples near month boundaries.
	Timezone string `yaml:"timezone"`
}

// StorageConfig selects and locates the record store.
type StorageConfig struct {
	// Backend is "file" (directory tree of CSV + JSON files) or "sqlite".
	Backend string `yaml:"backend"`

	// DataDir is the root of the file backend. Partitions, snapshots and
	// contact records live under DataDir/data, watchdog records under
	// DataDir/state.
	DataDir string `yaml:"data_dir"`

	// LogDir receives the watchdog's daily operational journal.
	LogDir string `yaml:"log_dir"`

	// LockTimeout bounds how long an append waits for a partition lock (seconds).
	LockTimeout int `yaml:"lock_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RegistryConfig locates the static device registry.
type RegistryConfig struct {
	// DevicesFile is a JSON or YAML document listing devices.
	DevicesFile string `yaml:"devices_file"`
}

// IngestConfig contains ingestion protocol settings.
type IngestConfig struct {
	// ProtocolVersion is the only payload version accepted.
	ProtocolVersion string `yaml:"protocol_version"`

	// ClockSkewTolerance is how far a device timestamp may be from server
	// time before it is replaced by server time.
	ClockSkewTolerance time.Duration `yaml:"clock_skew_tolerance"`

	// MaxBodyBytes caps HTTP and MQTT payload size.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// WatchdogConfig contains liveness watchdog settings.
type WatchdogConfig struct {
	// Interval runs the watchdog inside "serve". Zero leaves scheduling to
	// an external scheduler invoking "solarwatch watchdog".
	Interval time.Duration `yaml:"interval"`

	// MinGraceSec is the floor applied to every device's offline grace.
	MinGraceSec int64 `yaml:"min_grace_sec"`

	// DefaultGraceSec applies to devices that do not declare a grace.
	DefaultGraceSec int64 `yaml:"default_grace_sec"`
}

// AlertsConfig contains alert delivery settings.
type AlertsConfig struct {
	// RecipientsKey is the record key of the recipient list.
	RecipientsKey string `yaml:"recipients_key"`

	// SubjectPrefix is prepended to every alert subject.
	SubjectPrefix string `yaml:"subject_prefix"`

	SMTP SMTPConfig      `yaml:"smtp"`
	MQTT AlertMQTTConfig `yaml:"mqtt"`
}

// SMTPConfig contains SMTP relay settings for mail alerts.
type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// TLSPolicy is "mandatory", "opportunistic" or "none".
	TLSPolicy string `yaml:"tls_policy"`

	// Timeout bounds a single delivery attempt (seconds).
	Timeout int `yaml:"timeout"`
}

// AlertMQTTConfig enables publishing alerts on MQTT.
type AlertMQTTConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// IngestEnabled subscribes to device telemetry topics.
	IngestEnabled bool `yaml:"ingest_enabled"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SOLARWATCH_SECTION_KEY
// For example: SOLARWATCH_DATA_DIR, SOLARWATCH_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Solar MPPT Monitor",
			Timezone: "Asia/Tokyo",
		},
		Storage: StorageConfig{
			Backend:     BackendFile,
			DataDir:     "./var",
			LogDir:      "./var/logs",
			LockTimeout: 10,
		},
		Database: DatabaseConfig{
			Path:        "./var/solarwatch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Registry: RegistryConfig{
			DevicesFile: "./configs/devices.json",
		},
		Ingest: IngestConfig{
			ProtocolVersion:    "1.00",
			ClockSkewTolerance: 7 * 24 * time.Hour,
			MaxBodyBytes:       64 << 10,
		},
		Watchdog: WatchdogConfig{
			MinGraceSec:     60,
			DefaultGraceSec: 900,
		},
		Alerts: AlertsConfig{
			RecipientsKey: "alert_recipients.json",
			SubjectPrefix: "[Solar Monitor]",
			SMTP: SMTPConfig{
				Port:      587,
				TLSPolicy: "mandatory",
				Timeout:   15,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "solarwatch-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SOLARWATCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Storage
	if v := os.Getenv("SOLARWATCH_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("SOLARWATCH_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SOLARWATCH_LOG_DIR"); v != "" {
		cfg.Storage.LogDir = v
	}
	if v := os.Getenv("SOLARWATCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Registry
	if v := os.Getenv("SOLARWATCH_DEVICES_FILE"); v != "" {
		cfg.Registry.DevicesFile = v
	}

	// MQTT
	if v := os.Getenv("SOLARWATCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SOLARWATCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SOLARWATCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SOLARWATCH_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("SOLARWATCH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// SMTP password is never expected in the file on production sites.
	if v := os.Getenv("SOLARWATCH_SMTP_PASSWORD"); v != "" {
		cfg.Alerts.SMTP.Password = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a known zone", c.Site.Timezone))
	}

	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.DataDir == "" {
			errs = append(errs, "storage.data_dir is required for the file backend")
		}
	case BackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite backend")
		}
	default:
		errs = append(errs, "storage.backend must be \"file\" or \"sqlite\"")
	}
	if c.Storage.LockTimeout < 1 {
		errs = append(errs, "storage.lock_timeout must be at least 1 second")
	}

	if c.Registry.DevicesFile == "" {
		errs = append(errs, "registry.devices_file is required")
	}

	if c.Ingest.ProtocolVersion == "" {
		errs = append(errs, "ingest.protocol_version is required")
	}
	if c.Ingest.ClockSkewTolerance <= 0 {
		errs = append(errs, "ingest.clock_skew_tolerance must be positive")
	}

	if c.Watchdog.MinGraceSec < 1 {
		errs = append(errs, "watchdog.min_grace_sec must be positive")
	}
	if c.Watchdog.Interval < 0 {
		errs = append(errs, "watchdog.interval cannot be negative")
	}

	if c.Alerts.RecipientsKey == "" {
		errs = append(errs, "alerts.recipients_key is required")
	}
	if c.Alerts.SMTP.Enabled && c.Alerts.SMTP.Host == "" {
		errs = append(errs, "alerts.smtp.host is required when smtp is enabled")
	}
	if c.Alerts.MQTT.Enabled && !c.MQTT.Enabled {
		errs = append(errs, "alerts.mqtt requires mqtt.enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.IngestEnabled && !c.MQTT.Enabled {
		errs = append(errs, "mqtt.ingest_enabled requires mqtt.enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location returns the site timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetLockTimeout returns the partition lock timeout as a Duration.
func (c *Config) GetLockTimeout() time.Duration {
	return time.Duration(c.Storage.LockTimeout) * time.Second
}

// ReadTimeout returns the read timeout as a Duration.
func (a APIConfig) ReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (a APIConfig) WriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// IdleTimeout returns the idle timeout as a Duration.
func (a APIConfig) IdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
