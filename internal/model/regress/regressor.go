// Package regress provides the interchangeable regression backends
// used by the model manager.
//
// Two backends exist: a distance-weighted k-nearest-neighbours
// regressor (the default, well suited to the small, slowly growing
// datasets a single household produces) and a ridge regressor for
// installs that prefer a smooth linear response. Both are
// deterministic: the same training data always yields the same model.
package regress

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnknownKind indicates a regressor kind with no registered backend.
	ErrUnknownKind = errors.New("regress: unknown regressor kind")

	// ErrNotFitted indicates Predict was called before Fit.
	ErrNotFitted = errors.New("regress: model not fitted")

	// ErrDimensionMismatch indicates a feature vector whose length does
	// not match the training data.
	ErrDimensionMismatch = errors.New("regress: feature dimension mismatch")

	// ErrFitFailed indicates training could not produce a model, e.g. a
	// singular system in the ridge solve.
	ErrFitFailed = errors.New("regress: fit failed")
)

// Regressor kinds accepted by New and Unmarshal.
const (
	KindKNN   = "knn"
	KindRidge = "ridge"
)

// Regressor is a trainable setpoint predictor over fixed-width feature
// vectors. Implementations are not safe for concurrent Fit, but a
// fitted regressor is safe for concurrent Predict.
type Regressor interface {
	// Fit trains on x (one row per instance) and targets y.
	Fit(x *mat.Dense, y []float64) error

	// Predict returns the predicted target for one feature vector.
	Predict(features []float64) (float64, error)

	// Kind identifies the backend for persistence.
	Kind() string

	// MarshalParams serializes the fitted state as JSON.
	MarshalParams() ([]byte, error)
}

// New returns an unfitted regressor of the given kind with default
// hyperparameters.
func New(kind string) (Regressor, error) {
	switch kind {
	case KindKNN:
		return NewKNN(0), nil
	case KindRidge:
		return NewRidge(0), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Unmarshal restores a fitted regressor from its persisted parameters.
func Unmarshal(kind string, params []byte) (Regressor, error) {
	switch kind {
	case KindKNN:
		return unmarshalKNN(params)
	case KindRidge:
		return unmarshalRidge(params)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
