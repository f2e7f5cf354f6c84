package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for govee2mqtt.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	// Debug forces logging.level to "debug" when true.
	Debug bool `yaml:"debug"`

	MQTT     MQTTConfig     `yaml:"mqtt"`
	Govee    GoveeConfig    `yaml:"govee"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// Prefix is the root of every bridge topic (e.g. "govee").
	Prefix string `yaml:"prefix"`

	// HomeAssistant is the discovery prefix (e.g. "homeassistant").
	// Discovery configs are only published when this is set.
	HomeAssistant string `yaml:"homeassistant"`
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
	// MaxDelay caps the backoff between automatic reconnect attempts, in
	// seconds.
	MaxDelay int `yaml:"max_delay"`

	// GracePeriod is how long the bridge waits in RECONNECTING before
	// giving up and terminating the process.
	GracePeriod time.Duration `yaml:"grace_period"`

	// MinSession is the shortest healthy session. A connection lost sooner
	// than this after connecting is treated as flapping and is fatal.
	MinSession time.Duration `yaml:"min_session"`
}

// GoveeConfig contains vendor API and polling settings.
type GoveeConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	// Poll intervals in seconds.
	DeviceListInterval  int `yaml:"device_list_interval"`
	DeviceInterval      int `yaml:"device_interval"`
	DeviceBoostInterval int `yaml:"device_boost_interval"`

	// CommandDelay is the pause between successive commands to one device.
	CommandDelay time.Duration `yaml:"command_delay"`

	// RequestTimeout bounds every individual vendor API call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig controls the client-side guard on the vendor API budget.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Floor is the remaining-request count at which calls are held back
	// until the vendor's reset time.
	Floor int `yaml:"floor"`
}

// BridgeConfig contains translation settings.
type BridgeConfig struct {
	// BrightnessScale is the upper bound of the public brightness value.
	// The vendor uses a 0-100 percentage; 100 disables rescaling.
	BrightnessScale int `yaml:"brightness_scale"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
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

	// Tags are added to every point, e.g. {"site": "home"}.
	Tags map[string]string `yaml:"tags"`
}

// DatabaseConfig contains SQLite settings for the command audit journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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
// Environment variables follow the pattern: GOVEE2MQTT_SECTION_KEY
// For example: GOVEE2MQTT_MQTT_HOST, GOVEE2MQTT_GOVEE_API_KEY
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Debug {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "govee",
			},
			QoS:    0,
			Prefix: "govee",
			Reconnect: MQTTReconnectConfig{
				MaxDelay:    30,
				GracePeriod: 60 * time.Second,
				MinSession:  10 * time.Second,
			},
		},
		Govee: GoveeConfig{
			BaseURL:             "https://developer-api.govee.com",
			DeviceListInterval:  300,
			DeviceInterval:      30,
			DeviceBoostInterval: 5,
			CommandDelay:        time.Second,
			RequestTimeout:      10 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				Floor:   5,
			},
		},
		Bridge: BridgeConfig{
			BrightnessScale: 254,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/govee2mqtt.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Secrets should normally arrive this way rather than through the YAML file.
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("GOVEE2MQTT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GOVEE2MQTT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GOVEE2MQTT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Govee
	if v := os.Getenv("GOVEE2MQTT_GOVEE_API_KEY"); v != "" {
		cfg.Govee.APIKey = v
	}

	// InfluxDB
	if v := os.Getenv("GOVEE2MQTT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("GOVEE2MQTT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Logging
	if v := os.Getenv("GOVEE2MQTT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Prefix == "" {
		errs = append(errs, "mqtt.prefix is required")
	} else if strings.ContainsAny(c.MQTT.Prefix, "+#") {
		errs = append(errs, "mqtt.prefix must not contain wildcards")
	}
	if c.MQTT.Reconnect.GracePeriod < 0 || c.MQTT.Reconnect.MinSession < 0 {
		errs = append(errs, "mqtt.reconnect durations must not be negative")
	}

	// Govee validation
	if c.Govee.APIKey == "" {
		errs = append(errs, "govee.api_key is required (set GOVEE2MQTT_GOVEE_API_KEY environment variable)")
	}
	if c.Govee.BaseURL == "" {
		errs = append(errs, "govee.base_url is required")
	}
	if c.Govee.DeviceListInterval <= 0 || c.Govee.DeviceInterval <= 0 || c.Govee.DeviceBoostInterval <= 0 {
		errs = append(errs, "govee poll intervals must be positive")
	}
	if c.Govee.CommandDelay < 0 {
		errs = append(errs, "govee.command_delay must not be negative")
	}
	if c.Govee.RequestTimeout <= 0 {
		errs = append(errs, "govee.request_timeout must be positive")
	}

	// Bridge validation
	if c.Bridge.BrightnessScale < 1 || c.Bridge.BrightnessScale > 255 {
		errs = append(errs, "bridge.brightness_scale must be between 1 and 255")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Optional sinks
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the audit journal is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetDeviceListInterval returns the device list refresh interval.
func (c *Config) GetDeviceListInterval() time.Duration {
	return time.Duration(c.Govee.DeviceListInterval) * time.Second
}

// GetDeviceInterval returns the normal-rate device state interval.
func (c *Config) GetDeviceInterval() time.Duration {
	return time.Duration(c.Govee.DeviceInterval) * time.Second
}

// GetDeviceBoostInterval returns the boosted device state interval.
func (c *Config) GetDeviceBoostInterval() time.Duration {
	return time.Duration(c.Govee.DeviceBoostInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
