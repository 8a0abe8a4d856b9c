// Package snapshot assembles entity state changes into consistent
// feature snapshots and turns human setpoint adjustments into training
// instances and override requests.
//
// Sensor events are merged into a live feature cache keyed by
// sanitised entity ID. Because related events often arrive in a burst
// (a motion sensor flips, then the lux sensor updates), a short
// debounce window absorbs the burst before the merged snapshot is
// considered settled; the merge itself is driven by event timestamps,
// so the result is independent of arrival order.
//
// Setpoint events on the target device are classified by the origin
// ledger. System echoes are discarded, which is what keeps the
// controller's own actuations out of the training data. Human changes
// are captured as a training instance (feature snapshot paired with
// the chosen setpoint, the setpoint itself never a feature) and
// forwarded to the controller as an override request.
package snapshot
