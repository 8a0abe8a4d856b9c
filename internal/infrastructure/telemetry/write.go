package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePrediction records a model prediction for the target device.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: The target climate device
//   - modelVersion: Version of the model that produced the prediction
//   - predicted: Predicted setpoint in degrees
//   - issued: Whether the prediction resulted in an actuation command
//     (false when suppressed as a redundant write or on command failure)
func (c *Client) WritePrediction(deviceID string, modelVersion int64, predicted float64, issued bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"prediction",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"predicted_c":   predicted,
			"model_version": modelVersion,
			"issued":        issued,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSetpoint records an observed setpoint change on the target device.
//
// Parameters:
//   - deviceID: The target climate device
//   - value: The new setpoint in degrees
//   - origin: Provenance of the change ("human" or "system")
func (c *Client) WriteSetpoint(deviceID string, value float64, origin string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"setpoint",
		map[string]string{
			"device_id": deviceID,
			"origin":    origin,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTrainingRun records the outcome of a training job.
//
// Parameters:
//   - outcome: "success", "insufficient_data", or "error"
//   - modelVersion: Version of the resulting model (0 when training failed)
//   - instances: Number of instances scanned
//   - duration: Wall-clock training time
func (c *Client) WriteTrainingRun(outcome string, modelVersion int64, instances int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"training_run",
		map[string]string{
			"outcome": outcome,
		},
		map[string]interface{}{
			"model_version": modelVersion,
			"instances":     instances,
			"duration_ms":   duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteOverride records a manual override entry or expiry.
//
// Parameters:
//   - deviceID: The target climate device
//   - active: true on entry, false on expiry
//   - pinnedTarget: The human-requested setpoint (0 on expiry)
func (c *Client) WriteOverride(deviceID string, active bool, pinnedTarget float64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"active": active,
	}
	if active {
		fields["pinned_target"] = pinnedTarget
	}

	point := write.NewPoint(
		"override",
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
