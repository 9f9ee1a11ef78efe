package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Reload modes understood by the sync service.
const (
	ReloadModeMQTT    = "mqtt"
	ReloadModeCommand = "command"
	ReloadModeNone    = "none"
)

// Config is the root configuration structure for the room sync service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Sync     SyncConfig     `yaml:"sync"`
	Reload   ReloadConfig   `yaml:"reload"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Audit    AuditConfig    `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StorageConfig locates the HomeKit bridge state files.
type StorageConfig struct {
	// Dir is the platform's storage directory holding homekit.<bridge>.state files.
	Dir string `yaml:"dir"`
}

// SyncConfig controls when sync passes run.
type SyncConfig struct {
	// DebounceMS is the quiet period after a registry change before a pass runs.
	DebounceMS int `yaml:"debounce_ms"`

	// InitialSync runs one pass per bridge when the service starts.
	InitialSync bool `yaml:"initial_sync"`
}

// ReloadConfig selects how the downstream bridge is asked to reload.
type ReloadConfig struct {
	// Mode is one of "mqtt", "command" or "none".
	Mode string `yaml:"mode"`

	// Command is the argv executed in "command" mode.
	Command []string `yaml:"command"`

	// Timeout bounds a single reload request in seconds. 0 waits indefinitely.
	Timeout int `yaml:"timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// APIConfig contains the optional HTTP status API settings.
type APIConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig holds HTTP server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// AuditConfig controls the activity history kept in the database.
type AuditConfig struct {
	// RecordUnchanged also records passes that wrote nothing.
	RecordUnchanged bool `yaml:"record_unchanged"`

	// RetentionDays prunes older entries at startup. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
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
// Environment variables follow the pattern: ROOMSYNC_SECTION_KEY
// For example: ROOMSYNC_STORAGE_DIR, ROOMSYNC_MQTT_HOST
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
		Storage: StorageConfig{
			Dir: "/config/.storage",
		},
		Sync: SyncConfig{
			DebounceMS:  500,
			InitialSync: true,
		},
		Reload: ReloadConfig{
			Mode: ReloadModeMQTT,
		},
		Database: DatabaseConfig{
			Path:        "./data/roomsync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "roomsync",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "roomsync",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8088,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 60,
				Idle:  120,
			},
		},
		Audit: AuditConfig{
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROOMSYNC_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("ROOMSYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ROOMSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ROOMSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ROOMSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("ROOMSYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("ROOMSYNC_RELOAD_MODE"); v != "" {
		cfg.Reload.Mode = v
	}
	if v := os.Getenv("ROOMSYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("ROOMSYNC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Storage.Dir == "" {
		errs = append(errs, "storage.dir is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Sync.DebounceMS < 0 {
		errs = append(errs, "sync.debounce_ms must not be negative")
	}

	switch c.Reload.Mode {
	case ReloadModeMQTT:
		if !c.MQTT.Enabled {
			errs = append(errs, "reload.mode mqtt requires mqtt.enabled")
		}
	case ReloadModeCommand:
		if len(c.Reload.Command) == 0 || c.Reload.Command[0] == "" {
			errs = append(errs, "reload.command is required when reload.mode is command")
		}
	case ReloadModeNone:
	default:
		errs = append(errs, fmt.Sprintf("reload.mode must be one of mqtt, command, none (got %q)", c.Reload.Mode))
	}
	if c.Reload.Timeout < 0 {
		errs = append(errs, "reload.timeout must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && (c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Audit.RetentionDays < 0 {
		errs = append(errs, "audit.retention_days must not be negative")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DebounceDelay returns the sync debounce window as a Duration.
func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.Sync.DebounceMS) * time.Millisecond
}

// ReloadTimeout returns the reload timeout as a Duration. Zero means no timeout.
func (c *Config) ReloadTimeout() time.Duration {
	return time.Duration(c.Reload.Timeout) * time.Second
}
