package model

import "errors"

var (
	// ErrInsufficientData indicates too few training instances to
	// produce a model.
	ErrInsufficientData = errors.New("model: insufficient training data")

	// ErrModelUnavailable indicates no model has been trained or
	// loaded yet.
	ErrModelUnavailable = errors.New("model: no model available")

	// ErrSchemaMismatch indicates a snapshot that cannot be projected
	// onto the model's feature schema even after imputation.
	ErrSchemaMismatch = errors.New("model: snapshot does not match feature schema")

	// ErrCorruptModel indicates a persisted model that failed to decode.
	ErrCorruptModel = errors.New("model: persisted model is corrupt")
)
