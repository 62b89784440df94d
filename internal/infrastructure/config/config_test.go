package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
  timezone: "Europe/Amsterdam"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
store:
  path: "/tmp/test.bolt"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
automation:
  ramp_step: 2s
trackers:
  snapshot_interval: 5m
thermostat:
  master_device_ids: ["mqtt:boiler"]
  slave_device_ids: ["mqtt:trv-living", "mqtt:trv-bedroom"]
presence:
  hosts: ["phone-alex"]
  nobody_home_timeout: 30m
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Store.Path != "/tmp/test.bolt" {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, "/tmp/test.bolt")
	}
	if cfg.Automation.RampStep != 2*time.Second {
		t.Errorf("Automation.RampStep = %v, want 2s", cfg.Automation.RampStep)
	}
	if cfg.Automation.CodeTimeout != 2*time.Second {
		t.Errorf("Automation.CodeTimeout = %v, want default 2s", cfg.Automation.CodeTimeout)
	}
	if cfg.Trackers.SnapshotInterval != 5*time.Minute {
		t.Errorf("Trackers.SnapshotInterval = %v, want 5m", cfg.Trackers.SnapshotInterval)
	}
	if len(cfg.Thermostat.SlaveDeviceIDs) != 2 {
		t.Errorf("Thermostat.SlaveDeviceIDs = %v, want 2 entries", cfg.Thermostat.SlaveDeviceIDs)
	}
	if cfg.Presence.NobodyHomeTimeout != 30*time.Minute {
		t.Errorf("Presence.NobodyHomeTimeout = %v, want 30m", cfg.Presence.NobodyHomeTimeout)
	}
	if got := cfg.TimeZone().String(); got != "Europe/Amsterdam" {
		t.Errorf("TimeZone() = %q, want Europe/Amsterdam", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestLoad_BadEnvOverride(t *testing.T) {
	t.Setenv("GRAYHUB_API_PORT", "eighty")

	_, err := Load(writeConfig(t, "site:\n  id: home\n"))
	if err == nil || !strings.Contains(err.Error(), "GRAYHUB_API_PORT") {
		t.Errorf("Load() error = %v, want GRAYHUB_API_PORT error", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id",
		},
		{
			name:    "unknown timezone",
			mutate:  func(c *Config) { c.Site.Timezone = "Mars/Olympus" },
			wantErr: "site.timezone",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "missing store path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: "store.path",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name:    "zero ramp step",
			mutate:  func(c *Config) { c.Automation.RampStep = 0 },
			wantErr: "automation.ramp_step",
		},
		{
			name:    "zero snapshot interval",
			mutate:  func(c *Config) { c.Trackers.SnapshotInterval = 0 },
			wantErr: "trackers.snapshot_interval",
		},
		{
			name:   "disabled trackers need no interval",
			mutate: func(c *Config) { c.Trackers = TrackersConfig{} },
		},
		{
			name: "thermostat both master and slave",
			mutate: func(c *Config) {
				c.Thermostat.MasterDeviceIDs = []string{"mqtt:boiler"}
				c.Thermostat.SlaveDeviceIDs = []string{"mqtt:boiler"}
			},
			wantErr: "both master and slave",
		},
		{
			name:    "bridge without path",
			mutate:  func(c *Config) { c.Bridge.Path = "" },
			wantErr: "bridge.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("GRAYHUB_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYHUB_STORE_PATH", "/custom/path.bolt")
	t.Setenv("GRAYHUB_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYHUB_MQTT_PORT", "8883")
	t.Setenv("GRAYHUB_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYHUB_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYHUB_API_HOST", "192.168.1.1")
	t.Setenv("GRAYHUB_INFLUXDB_ENABLED", "true")
	t.Setenv("GRAYHUB_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYHUB_PRESENCE_HOSTS", "phone-alex, laptop-sam,")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.Store.Path != "/custom/path.bolt" {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, "/custom/path.bolt")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if !cfg.InfluxDB.Enabled {
		t.Error("InfluxDB.Enabled = false, want true")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if len(cfg.Presence.Hosts) != 2 || cfg.Presence.Hosts[1] != "laptop-sam" {
		t.Errorf("Presence.Hosts = %v, want [phone-alex laptop-sam]", cfg.Presence.Hosts)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Site.ID == "" {
		t.Error("Default should have non-empty Site.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("Default should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("Default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Default API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.TimeZone() != time.UTC {
		t.Errorf("Default TimeZone() = %v, want UTC", cfg.TimeZone())
	}
}
