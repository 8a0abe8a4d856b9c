// Package trainstore persists training instances.
//
// The store is an append-only log backed by SQLite: each human
// setpoint adjustment made in a learning mode becomes one row pairing
// the merged feature snapshot (JSON) with the observed target
// setpoint. Rows are never updated or deleted by the core.
//
// Reads are defensive: a row whose feature JSON or timestamp fails to
// parse is skipped with a warning rather than failing the scan, so one
// corrupt row cannot block retraining on the rest of the history.
package trainstore
