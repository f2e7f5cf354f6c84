package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns a Config that passes validation.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Govee.APIKey = "test-api-key"
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mqtt:
  broker:
    host: "broker.local"
    port: 1884
  auth:
    username: "bridge"
    password: "secret"
  prefix: "lights"
  homeassistant: "homeassistant"
govee:
  api_key: "abc-123"
  device_interval: 45
  command_delay: 1500ms
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.Prefix != "lights" {
		t.Errorf("MQTT.Prefix = %q, want %q", cfg.MQTT.Prefix, "lights")
	}
	if cfg.MQTT.HomeAssistant != "homeassistant" {
		t.Errorf("MQTT.HomeAssistant = %q, want %q", cfg.MQTT.HomeAssistant, "homeassistant")
	}
	if cfg.Govee.APIKey != "abc-123" {
		t.Errorf("Govee.APIKey = %q, want %q", cfg.Govee.APIKey, "abc-123")
	}
	if got := cfg.GetDeviceInterval(); got != 45*time.Second {
		t.Errorf("GetDeviceInterval() = %v, want 45s", got)
	}
	if cfg.Govee.CommandDelay != 1500*time.Millisecond {
		t.Errorf("Govee.CommandDelay = %v, want 1.5s", cfg.Govee.CommandDelay)
	}

	// Untouched keys keep their defaults
	if got := cfg.GetDeviceListInterval(); got != 300*time.Second {
		t.Errorf("GetDeviceListInterval() = %v, want 300s", got)
	}
	if got := cfg.GetDeviceBoostInterval(); got != 5*time.Second {
		t.Errorf("GetDeviceBoostInterval() = %v, want 5s", got)
	}
}

func TestLoad_DebugForcesDebugLevel(t *testing.T) {
	content := `
debug: true
govee:
  api_key: "abc-123"
logging:
  level: "warn"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
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
	content := `
mqtt:
  prefix: "govee"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for missing api_key, got nil")
	}
	if !strings.Contains(err.Error(), "govee.api_key") {
		t.Errorf("Load() error = %v, want mention of govee.api_key", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.Govee.APIKey = "" },
			wantErr: true,
		},
		{
			name:    "missing broker host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "wildcard prefix",
			mutate:  func(c *Config) { c.MQTT.Prefix = "govee/#" },
			wantErr: true,
		},
		{
			name:    "empty prefix",
			mutate:  func(c *Config) { c.MQTT.Prefix = "" },
			wantErr: true,
		},
		{
			name:    "zero boost interval",
			mutate:  func(c *Config) { c.Govee.DeviceBoostInterval = 0 },
			wantErr: true,
		},
		{
			name:    "negative command delay",
			mutate:  func(c *Config) { c.Govee.CommandDelay = -time.Second },
			wantErr: true,
		},
		{
			name:    "zero command delay allowed",
			mutate:  func(c *Config) { c.Govee.CommandDelay = 0 },
			wantErr: false,
		},
		{
			name:    "brightness scale out of range",
			mutate:  func(c *Config) { c.Bridge.BrightnessScale = 0 },
			wantErr: true,
		},
		{
			name:    "api port invalid when enabled",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name: "api port ignored when disabled",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
			wantErr: false,
		},
		{
			name: "influxdb enabled without bucket",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
				c.InfluxDB.Org = "home"
			},
			wantErr: true,
		},
		{
			name: "database enabled without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
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

	if got := cfg.API.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.API.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.API.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GOVEE2MQTT_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GOVEE2MQTT_MQTT_USERNAME", "testuser")
	t.Setenv("GOVEE2MQTT_MQTT_PASSWORD", "testpass")
	t.Setenv("GOVEE2MQTT_GOVEE_API_KEY", "env-key")
	t.Setenv("GOVEE2MQTT_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GOVEE2MQTT_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GOVEE2MQTT_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.Govee.APIKey != "env-key" {
		t.Errorf("Govee.APIKey = %q, want %q", cfg.Govee.APIKey, "env-key")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Broker.ClientID != "govee" {
		t.Errorf("defaultConfig MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "govee")
	}
	if cfg.Govee.CommandDelay != time.Second {
		t.Errorf("defaultConfig Govee.CommandDelay = %v, want 1s", cfg.Govee.CommandDelay)
	}
	if cfg.Bridge.BrightnessScale != 254 {
		t.Errorf("defaultConfig Bridge.BrightnessScale = %d, want 254", cfg.Bridge.BrightnessScale)
	}
	if cfg.InfluxDB.Enabled || cfg.Database.Enabled {
		t.Error("defaultConfig should leave optional sinks disabled")
	}
}
