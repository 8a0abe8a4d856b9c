// Package controller runs the closed-loop side of the core: the
// periodic predict-and-actuate cycle, manual override handling and
// retrain scheduling.
//
// The controller is a small state machine. Its mode (learning,
// controlling, or both) gates what the event pipeline and the loop are
// allowed to do; its status (idle, training, predicting,
// override_active, error) is purely observable and never drives
// behavior. Mode, override state and the last issued setpoint are
// persisted so a restart resumes where the process left off.
//
// Actuation is suppressed while an override is active, when no model
// is installed, and when a prediction differs from the last issued
// setpoint by less than the configured deadband. Every setpoint the
// controller writes is recorded in the origin ledger first, which is
// how its own echoes stay out of the training data.
package controller
