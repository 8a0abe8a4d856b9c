package model

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/embercore/ember-core/internal/snapshot"
	"github.com/embercore/ember-core/internal/trainstore"
)

// Derived time feature names. Time-of-day and day-of-week are encoded
// cyclically so 23:59 sits next to 00:01 and Sunday next to Monday.
const (
	featTimeSin = "time_sin"
	featTimeCos = "time_cos"
	featDowSin  = "dow_sin"
	featDowCos  = "dow_cos"
)

// timeFeatureNames in schema order.
var timeFeatureNames = []string{featTimeSin, featTimeCos, featDowSin, featDowCos}

// timeFeatures computes the derived features for an instant.
func timeFeatures(at time.Time) map[string]float64 {
	daySeconds := float64(at.Hour()*3600 + at.Minute()*60 + at.Second())
	dayFrac := daySeconds / 86400

	weekFrac := (float64(at.Weekday()) + dayFrac) / 7

	return map[string]float64{
		featTimeSin: math.Sin(2 * math.Pi * dayFrac),
		featTimeCos: math.Cos(2 * math.Pi * dayFrac),
		featDowSin:  math.Sin(2 * math.Pi * weekFrac),
		featDowCos:  math.Cos(2 * math.Pi * weekFrac),
	}
}

// isTimeFeature reports whether a schema entry is derived from the
// timestamp rather than a sensor.
func isTimeFeature(name string) bool {
	switch name {
	case featTimeSin, featTimeCos, featDowSin, featDowCos:
		return true
	}
	return false
}

// buildSchema derives the ordered feature schema from training data:
// the time features followed by the sorted union of sensor features.
func buildSchema(instances []trainstore.Instance) []string {
	nameSet := make(map[string]struct{})
	for _, inst := range instances {
		for name := range inst.Features {
			nameSet[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)

	schema := make([]string, 0, len(timeFeatureNames)+len(names))
	schema = append(schema, timeFeatureNames...)
	return append(schema, names...)
}

// computeMeans returns the mean of each sensor feature over the
// instances that report it. These are the imputation values frozen
// into the model.
func computeMeans(schema []string, instances []trainstore.Instance) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, inst := range instances {
		for name, v := range inst.Features {
			sums[name] += v
			counts[name]++
		}
	}

	means := make(map[string]float64)
	for _, name := range schema {
		if isTimeFeature(name) {
			continue
		}
		if counts[name] > 0 {
			means[name] = sums[name] / float64(counts[name])
		}
	}
	return means
}

// vectorize projects a snapshot onto the schema. Missing sensor
// features fall back to the training mean; a feature with neither a
// value nor a mean fails with ErrSchemaMismatch.
func vectorize(schema []string, means map[string]float64, snap snapshot.Snapshot) ([]float64, error) {
	tf := timeFeatures(snap.At)

	vec := make([]float64, len(schema))
	for i, name := range schema {
		if isTimeFeature(name) {
			vec[i] = tf[name]
			continue
		}
		if v, ok := snap.Features[name]; ok {
			vec[i] = v
			continue
		}
		if mean, ok := means[name]; ok {
			vec[i] = mean
			continue
		}
		return nil, fmt.Errorf("%w: feature %q has no value and no mean", ErrSchemaMismatch, name)
	}
	return vec, nil
}

// buildMatrix vectorizes every instance into a design matrix and
// target vector.
func buildMatrix(schema []string, means map[string]float64, instances []trainstore.Instance) (*mat.Dense, []float64, error) {
	x := mat.NewDense(len(instances), len(schema), nil)
	y := make([]float64, len(instances))
	for i, inst := range instances {
		vec, err := vectorize(schema, means, snapshot.Snapshot{
			At:       inst.ObservedAt,
			Features: inst.Features,
		})
		if err != nil {
			return nil, nil, err
		}
		x.SetRow(i, vec)
		y[i] = inst.Target
	}
	return x, y, nil
}
