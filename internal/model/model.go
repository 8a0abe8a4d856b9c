package model

import (
	"time"

	"github.com/embercore/ember-core/internal/model/regress"
	"github.com/embercore/ember-core/internal/snapshot"
)

// Model is one immutable trained predictor. Once built it is never
// mutated, so it is safe to share across goroutines.
type Model struct {
	// Version is the monotonically increasing model version.
	Version int64

	// TrainedAt is when training completed.
	TrainedAt time.Time

	// Schema is the ordered feature list the regressor was fitted on.
	Schema []string

	// Means holds per-sensor-feature training means for imputation.
	Means map[string]float64

	// Instances is the number of training instances the model saw.
	Instances int

	regressor regress.Regressor
}

// Predict projects the snapshot onto the model's schema and returns
// the predicted setpoint.
func (m *Model) Predict(snap snapshot.Snapshot) (float64, error) {
	vec, err := vectorize(m.Schema, m.Means, snap)
	if err != nil {
		return 0, err
	}
	return m.regressor.Predict(vec)
}

// RegressorKind identifies the backend the model was trained with.
func (m *Model) RegressorKind() string {
	if m.regressor == nil {
		return ""
	}
	return m.regressor.Kind()
}
