package trainstore

import "time"

// Instance is one training example: the environment as observed at the
// moment a human chose a setpoint, paired with that setpoint.
type Instance struct {
	// ID is a unique identifier, assigned by the store on append if empty.
	ID string

	// ObservedAt is when the human adjustment happened.
	ObservedAt time.Time

	// Features maps sanitised entity IDs to their values at ObservedAt.
	// The target device's own setpoint is never a feature.
	Features map[string]float64

	// Target is the setpoint the human chose.
	Target float64
}
