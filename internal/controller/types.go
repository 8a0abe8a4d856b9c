package controller

import (
	"fmt"
	"time"
)

// Mode selects which halves of the core are active.
type Mode string

const (
	// ModeLearning observes and stores, never actuates.
	ModeLearning Mode = "learning"

	// ModeControlling actuates from the installed model, never learns.
	ModeControlling Mode = "controlling"

	// ModeLearningAndControlling does both.
	ModeLearningAndControlling Mode = "learning_and_controlling"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLearning, ModeControlling, ModeLearningAndControlling:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Learning reports whether the mode captures training instances.
func (m Mode) Learning() bool {
	return m == ModeLearning || m == ModeLearningAndControlling
}

// Controlling reports whether the mode actuates the device.
func (m Mode) Controlling() bool {
	return m == ModeControlling || m == ModeLearningAndControlling
}

// Status is the observable condition of the controller. It never
// gates behavior.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusTraining       Status = "training"
	StatusPredicting     Status = "predicting"
	StatusOverrideActive Status = "override_active"
	StatusError          Status = "error"
)

// OverrideState describes a manual override. While active, the
// predict loop leaves the device alone.
type OverrideState struct {
	Active       bool      `json:"active"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	PinnedTarget float64   `json:"pinned_target,omitempty"`
}

// StatusInfo is a point-in-time view of the controller, served over
// the API and pushed to status stream subscribers.
type StatusInfo struct {
	Mode         Mode          `json:"mode"`
	Status       Status        `json:"status"`
	Detail       string        `json:"detail,omitempty"`
	Override     OverrideState `json:"override"`
	ModelVersion int64         `json:"model_version"`
	LastIssued   *float64      `json:"last_issued,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// PersistedState is what survives a restart.
type PersistedState struct {
	Mode       Mode
	Override   OverrideState
	LastIssued *float64
}
