package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8090
learning:
  target_device_id: "climate.living_room"
  sensor_entity_ids:
    - "sensor.hall_temperature"
    - "binary_sensor.occupancy"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

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

	if cfg.Learning.TargetDeviceID != "climate.living_room" {
		t.Errorf("Learning.TargetDeviceID = %q, want %q", cfg.Learning.TargetDeviceID, "climate.living_room")
	}

	if len(cfg.Learning.SensorEntityIDs) != 2 {
		t.Errorf("len(Learning.SensorEntityIDs) = %d, want 2", len(cfg.Learning.SensorEntityIDs))
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
learning:
  target_device_id: "climate.living_room"
  sensor_entity_ids: ["sensor.hall_temperature"]
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Learning.DebounceWindowMs != 1500 {
		t.Errorf("DebounceWindowMs = %d, want default 1500", cfg.Learning.DebounceWindowMs)
	}
	if cfg.Learning.OverrideDurationMinutes != 60 {
		t.Errorf("OverrideDurationMinutes = %d, want default 60", cfg.Learning.OverrideDurationMinutes)
	}
	if cfg.Learning.MinTrainingInstances != 20 {
		t.Errorf("MinTrainingInstances = %d, want default 20", cfg.Learning.MinTrainingInstances)
	}
	if cfg.Learning.Regressor != "knn" {
		t.Errorf("Regressor = %q, want default %q", cfg.Learning.Regressor, "knn")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
learning:
  target_device_id: "climate.living_room"
  sensor_entity_ids: ["sensor.hall_temperature"]
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("EMBERCORE_DATABASE_PATH", "/override/path.db")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/override/path.db" {
		t.Errorf("Database.Path = %q, want env override %q", cfg.Database.Path, "/override/path.db")
	}
}

func validLearning() LearningConfig {
	return LearningConfig{
		TargetDeviceID:          "climate.living_room",
		SensorEntityIDs:         []string{"sensor.hall_temperature"},
		DebounceWindowMs:        1500,
		OverrideDurationMinutes: 60,
		MinTrainingInstances:    20,
		PredictIntervalSeconds:  300,
		RetrainEveryNInstances:  10,
		Regressor:               "knn",
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
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid API port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "missing target device",
			mutate:  func(c *Config) { c.Learning.TargetDeviceID = "" },
			wantErr: true,
		},
		{
			name:    "no sensors",
			mutate:  func(c *Config) { c.Learning.SensorEntityIDs = nil },
			wantErr: true,
		},
		{
			name:    "negative debounce window",
			mutate:  func(c *Config) { c.Learning.DebounceWindowMs = -1 },
			wantErr: true,
		},
		{
			name:    "zero override duration",
			mutate:  func(c *Config) { c.Learning.OverrideDurationMinutes = 0 },
			wantErr: true,
		},
		{
			name:    "malformed retrain time",
			mutate:  func(c *Config) { c.Learning.RetrainTime = "25:99" },
			wantErr: true,
		},
		{
			name:    "unknown regressor",
			mutate:  func(c *Config) { c.Learning.Regressor = "forest" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Site:     SiteConfig{ID: "site-001"},
				Database: DatabaseConfig{Path: "/data/embercore.db"},
				MQTT:     MQTTConfig{QoS: 1},
				API:      APIConfig{Port: 8090},
				Learning: validLearning(),
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLearningConfig_Durations(t *testing.T) {
	l := validLearning()

	if got := l.DebounceWindow().Milliseconds(); got != 1500 {
		t.Errorf("DebounceWindow() = %dms, want 1500ms", got)
	}
	if got := l.OverrideDuration().Minutes(); got != 60 {
		t.Errorf("OverrideDuration() = %vmin, want 60min", got)
	}
	if got := l.PredictInterval().Seconds(); got != 300 {
		t.Errorf("PredictInterval() = %vs, want 300s", got)
	}
}
