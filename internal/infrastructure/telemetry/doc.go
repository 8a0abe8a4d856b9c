// Package telemetry provides InfluxDB-backed metrics for Ember Core.
//
// It wraps the official influxdb-client-go v2 library with Ember Core-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package records the learning pipeline's observable behaviour:
//   - Predictions and whether they were actuated
//   - Observed setpoint changes with their origin (human/system)
//   - Training run outcomes and durations
//   - Manual override entries and expiries
//
// Telemetry is optional (influxdb.enabled in config.yaml); when disabled,
// the caller holds a nil client and skips the writes.
//
// # Usage
//
//	client, err := telemetry.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePrediction("climate.living_room", 3, 21.5, true)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead without delaying the predict-and-actuate loop.
package telemetry
