package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Ember Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Learning  LearningConfig  `yaml:"learning"`
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
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket status-stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// LearningConfig contains the setpoint-learning pipeline settings.
//
// The target device and sensor entity list are produced by an external
// setup flow and consumed read-only here. Timing and threshold values are
// policy knobs, not correctness knobs; all have workable defaults.
type LearningConfig struct {
	// TargetDeviceID is the climate device whose setpoint is observed
	// and actuated (e.g., "climate.living_room").
	TargetDeviceID string `yaml:"target_device_id"`

	// SensorEntityIDs are the sensors whose readings form the feature
	// snapshot (e.g., "sensor.hall_temperature", "binary_sensor.occupancy").
	SensorEntityIDs []string `yaml:"sensor_entity_ids"`

	// DisplayName is a human-readable name for status reporting.
	DisplayName string `yaml:"display_name"`

	// DebounceWindowMs is the snapshot merge window in milliseconds.
	// State events arriving within the window are coalesced into one
	// feature snapshot (last value wins per feature).
	DebounceWindowMs int `yaml:"debounce_window_ms"`

	// OverrideDurationMinutes is how long a manual override suspends
	// automatic control.
	OverrideDurationMinutes int `yaml:"override_duration_minutes"`

	// MinTrainingInstances is the minimum number of stored instances
	// required before training succeeds.
	MinTrainingInstances int `yaml:"min_training_instances"`

	// PredictIntervalSeconds is the period of the predict-and-actuate loop.
	PredictIntervalSeconds int `yaml:"predict_interval_seconds"`

	// RetrainTime is the daily scheduled retrain time as "HH:MM" in the
	// site timezone. Empty disables the scheduled trigger.
	RetrainTime string `yaml:"retrain_time"`

	// RetrainEveryNInstances triggers a retrain after this many new
	// instances since the last successful training. 0 disables.
	RetrainEveryNInstances int `yaml:"retrain_every_n_instances"`

	// MinSetpointDelta is the minimum difference (degrees) between a
	// prediction and the last issued setpoint before a new actuation
	// command is written. Suppresses redundant device writes.
	MinSetpointDelta float64 `yaml:"min_setpoint_delta"`

	// Regressor selects the regression capability: "knn" or "ridge".
	Regressor string `yaml:"regressor"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: EMBERCORE_SECTION_KEY
// For example: EMBERCORE_DATABASE_PATH, EMBERCORE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Ember Core",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/embercore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ember-core",
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
			Port: 8090,
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Learning: LearningConfig{
			DebounceWindowMs:        1500,
			OverrideDurationMinutes: 60,
			MinTrainingInstances:    20,
			PredictIntervalSeconds:  300,
			RetrainTime:             "03:30",
			RetrainEveryNInstances:  10,
			MinSetpointDelta:        0.2,
			Regressor:               "knn",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: EMBERCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("EMBERCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("EMBERCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("EMBERCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("EMBERCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("EMBERCORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("EMBERCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Learning validation
	if c.Learning.TargetDeviceID == "" {
		errs = append(errs, "learning.target_device_id is required")
	}
	if len(c.Learning.SensorEntityIDs) == 0 {
		errs = append(errs, "learning.sensor_entity_ids must list at least one sensor")
	}
	if c.Learning.DebounceWindowMs < 0 {
		errs = append(errs, "learning.debounce_window_ms must not be negative")
	}
	if c.Learning.OverrideDurationMinutes < 1 {
		errs = append(errs, "learning.override_duration_minutes must be at least 1")
	}
	if c.Learning.MinTrainingInstances < 1 {
		errs = append(errs, "learning.min_training_instances must be at least 1")
	}
	if c.Learning.PredictIntervalSeconds < 1 {
		errs = append(errs, "learning.predict_interval_seconds must be at least 1")
	}
	if c.Learning.MinSetpointDelta < 0 {
		errs = append(errs, "learning.min_setpoint_delta must not be negative")
	}
	if c.Learning.RetrainTime != "" {
		if _, err := time.Parse("15:04", c.Learning.RetrainTime); err != nil {
			errs = append(errs, "learning.retrain_time must be HH:MM (24-hour)")
		}
	}
	switch c.Learning.Regressor {
	case "knn", "ridge":
	default:
		errs = append(errs, "learning.regressor must be \"knn\" or \"ridge\"")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// DebounceWindow returns the snapshot merge window as a Duration.
func (l LearningConfig) DebounceWindow() time.Duration {
	return time.Duration(l.DebounceWindowMs) * time.Millisecond
}

// OverrideDuration returns the manual override duration as a Duration.
func (l LearningConfig) OverrideDuration() time.Duration {
	return time.Duration(l.OverrideDurationMinutes) * time.Minute
}

// PredictInterval returns the predict-and-actuate loop period as a Duration.
func (l LearningConfig) PredictInterval() time.Duration {
	return time.Duration(l.PredictIntervalSeconds) * time.Second
}
