// Package config handles loading and validating Ember Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Learning.TargetDeviceID)
//
// The learning section is produced by an external setup flow (target device
// selection, sensor discovery) and consumed read-only here. Timing knobs
// (debounce window, override duration, predict interval, retrain schedule)
// are policy decisions; the defaults follow the reference deployment.
package config
