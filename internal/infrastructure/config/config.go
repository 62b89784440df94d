package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the hub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	Store      StoreConfig      `yaml:"store"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Automation AutomationConfig `yaml:"automation"`
	Trackers   TrackersConfig   `yaml:"trackers"`
	Thermostat ThermostatConfig `yaml:"thermostat"`
	Presence   PresenceConfig   `yaml:"presence"`
	Location   LocationConfig   `yaml:"location"`
	Bridge     BridgeConfig     `yaml:"bridge"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// StoreConfig contains the document store settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AutomationConfig contains scene engine and scheduler settings.
type AutomationConfig struct {
	// RampStep is the interval between ramp writes.
	RampStep time.Duration `yaml:"ramp_step"`

	// CodeTimeout bounds custom-code conditions.
	CodeTimeout time.Duration `yaml:"code_timeout"`

	// SchedulerInterval is how often interval and location triggers are checked.
	SchedulerInterval time.Duration `yaml:"scheduler_interval"`
}

// TrackersConfig contains trigger tracker settings.
type TrackersConfig struct {
	Enabled          bool          `yaml:"enabled"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// ThermostatConfig lists the thermostats taking part in master/slave
// orchestration.
type ThermostatConfig struct {
	MasterDeviceIDs []string `yaml:"master_device_ids"`
	SlaveDeviceIDs  []string `yaml:"slave_device_ids"`
}

// PresenceConfig contains host presence settings.
type PresenceConfig struct {
	Hosts             []string      `yaml:"hosts"`
	NobodyHomeTimeout time.Duration `yaml:"nobody_home_timeout"`
}

// LocationConfig contains geo location settings.
type LocationConfig struct {
	// TargetsFile is a YAML file of named target coordinates.
	TargetsFile string `yaml:"targets_file"`
}

// BridgeConfig contains the MQTT device bridge settings.
type BridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYHUB_SECTION_KEY
// For example: GRAYHUB_DATABASE_PATH, GRAYHUB_API_PORT
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

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "home",
			Name:     "Gray Logic Hub",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/hub.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Store: StoreConfig{
			Path: "./data/hub.bolt",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-hub",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
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
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     1000,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Automation: AutomationConfig{
			RampStep:          5 * time.Second,
			CodeTimeout:       2 * time.Second,
			SchedulerInterval: 10 * time.Second,
		},
		Trackers: TrackersConfig{
			Enabled:          true,
			SnapshotInterval: 60 * time.Second,
		},
		Presence: PresenceConfig{
			NobodyHomeTimeout: 15 * time.Minute,
		},
		Location: LocationConfig{
			TargetsFile: "./config/targets.yaml",
		},
		Bridge: BridgeConfig{
			Enabled: true,
			Path:    "./config/devices.yaml",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYHUB_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not a number", key, v))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			var out []string
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			*dst = out
		}
	}

	// Site
	str("GRAYHUB_SITE_ID", &cfg.Site.ID)
	str("GRAYHUB_SITE_TIMEZONE", &cfg.Site.Timezone)

	// Storage
	str("GRAYHUB_DATABASE_PATH", &cfg.Database.Path)
	str("GRAYHUB_STORE_PATH", &cfg.Store.Path)

	// MQTT
	str("GRAYHUB_MQTT_HOST", &cfg.MQTT.Broker.Host)
	num("GRAYHUB_MQTT_PORT", &cfg.MQTT.Broker.Port)
	str("GRAYHUB_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	str("GRAYHUB_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// API
	str("GRAYHUB_API_HOST", &cfg.API.Host)
	num("GRAYHUB_API_PORT", &cfg.API.Port)

	// InfluxDB
	flag("GRAYHUB_INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	str("GRAYHUB_INFLUXDB_URL", &cfg.InfluxDB.URL)
	str("GRAYHUB_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Logging
	str("GRAYHUB_LOGGING_LEVEL", &cfg.Logging.Level)
	str("GRAYHUB_LOGGING_FORMAT", &cfg.Logging.Format)

	// Domain
	list("GRAYHUB_PRESENCE_HOSTS", &cfg.Presence.Hosts)
	list("GRAYHUB_THERMOSTAT_MASTERS", &cfg.Thermostat.MasterDeviceIDs)
	list("GRAYHUB_THERMOSTAT_SLAVES", &cfg.Thermostat.SlaveDeviceIDs)
	str("GRAYHUB_LOCATION_TARGETS_FILE", &cfg.Location.TargetsFile)
	str("GRAYHUB_BRIDGE_PATH", &cfg.Bridge.Path)

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
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
	if c.Site.Timezone != "" {
		if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("site.timezone %q is not a known zone", c.Site.Timezone))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Automation.RampStep <= 0 {
		errs = append(errs, "automation.ramp_step must be positive")
	}
	if c.Automation.CodeTimeout <= 0 {
		errs = append(errs, "automation.code_timeout must be positive")
	}
	if c.Automation.SchedulerInterval <= 0 {
		errs = append(errs, "automation.scheduler_interval must be positive")
	}
	if c.Trackers.Enabled && c.Trackers.SnapshotInterval <= 0 {
		errs = append(errs, "trackers.snapshot_interval must be positive")
	}
	if c.Presence.NobodyHomeTimeout < 0 {
		errs = append(errs, "presence.nobody_home_timeout must not be negative")
	}

	seen := make(map[string]string)
	for _, id := range c.Thermostat.MasterDeviceIDs {
		seen[id] = "master"
	}
	for _, id := range c.Thermostat.SlaveDeviceIDs {
		if seen[id] == "master" {
			errs = append(errs, fmt.Sprintf("thermostat device %q cannot be both master and slave", id))
		}
	}

	if c.Bridge.Enabled && c.Bridge.Path == "" {
		errs = append(errs, "bridge.path is required when the bridge is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TimeZone returns the site's time zone, UTC when unset.
func (c *Config) TimeZone() *time.Location {
	if c.Site.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
