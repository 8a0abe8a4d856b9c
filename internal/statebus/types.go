package statebus

import (
	"encoding/json"
	"time"
)

// Event is one entity state change received from the host platform.
type Event struct {
	// EntityID is the host-side entity identifier, e.g.
	// "sensor.living_room_temperature".
	EntityID string

	// Value is the raw state value as a string. Numeric parsing is the
	// consumer's concern; sensors report numbers but binary entities
	// report values like "on" or "home".
	Value string

	// At is the instant the host recorded the state. Falls back to the
	// local receive time when the payload carries no usable timestamp.
	At time.Time
}

// statePayload is the wire form of a state message.
//
// Value is a RawMessage because hosts are inconsistent: numeric states
// arrive as JSON numbers, binary and enum states as JSON strings.
type statePayload struct {
	Value     json.RawMessage `json:"value"`
	Timestamp string          `json:"ts"`
}

// commandPayload is the wire form of an outbound service call.
type commandPayload struct {
	Service   string         `json:"service"`
	RequestID string         `json:"request_id"`
	Params    map[string]any `json:"params,omitempty"`
}
