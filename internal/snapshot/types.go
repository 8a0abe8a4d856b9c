package snapshot

import (
	"strconv"
	"strings"
	"time"
)

// Snapshot is a merged, point-in-time view of all known feature
// values. Features that have never reported are simply absent.
type Snapshot struct {
	At       time.Time
	Features map[string]float64
}

// Clone returns a deep copy. Snapshots handed across goroutine
// boundaries are always clones.
func (s Snapshot) Clone() Snapshot {
	features := make(map[string]float64, len(s.Features))
	for k, v := range s.Features {
		features[k] = v
	}
	return Snapshot{At: s.At, Features: features}
}

// FeatureName converts an entity ID into a feature name usable as a
// column or JSON key: dots become underscores, so
// "sensor.outdoor_temp" yields "sensor_outdoor_temp".
func FeatureName(entityID string) string {
	return strings.ReplaceAll(entityID, ".", "_")
}

// binaryStates maps non-numeric state values to feature values.
var binaryStates = map[string]float64{
	"on":     1,
	"off":    0,
	"true":   1,
	"false":  0,
	"open":   1,
	"closed": 0,
	"home":   1,
	"away":   0,
}

// ParseValue converts a raw state value to a feature value. Numeric
// strings parse directly; common binary states map to 1/0. The second
// return is false for anything else, e.g. "unavailable".
func ParseValue(raw string) (float64, bool) {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v, true
	}
	if v, ok := binaryStates[strings.ToLower(raw)]; ok {
		return v, true
	}
	return 0, false
}
