package regress

import (
	"encoding/json"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// defaultNeighbours is the k used when none is configured.
const defaultNeighbours = 5

// exactMatchEpsilon is the distance below which a stored instance is
// treated as identical to the query. An exact match returns the stored
// target directly, so the model memorizes what it has seen.
const exactMatchEpsilon = 1e-9

// KNN is a distance-weighted k-nearest-neighbours regressor. Fit
// stores the training data; Predict averages the targets of the k
// closest instances, weighted by inverse Euclidean distance.
type KNN struct {
	k       int
	rows    [][]float64
	targets []float64
}

// NewKNN creates a KNN regressor. k <= 0 selects the default.
func NewKNN(k int) *KNN {
	if k <= 0 {
		k = defaultNeighbours
	}
	return &KNN{k: k}
}

// Fit stores copies of the training rows.
func (r *KNN) Fit(x *mat.Dense, y []float64) error {
	n, d := x.Dims()
	if n == 0 || d == 0 {
		return fmt.Errorf("%w: empty training matrix", ErrFitFailed)
	}
	if n != len(y) {
		return fmt.Errorf("%w: %d rows but %d targets", ErrFitFailed, n, len(y))
	}

	r.rows = make([][]float64, n)
	for i := range r.rows {
		row := make([]float64, d)
		mat.Row(row, i, x)
		r.rows[i] = row
	}
	r.targets = append([]float64(nil), y...)
	return nil
}

// Predict returns the inverse-distance-weighted mean target of the k
// nearest stored instances. Instances at (numerically) zero distance
// short-circuit to the mean of their targets.
func (r *KNN) Predict(features []float64) (float64, error) {
	if len(r.rows) == 0 {
		return 0, ErrNotFitted
	}
	if len(features) != len(r.rows[0]) {
		return 0, fmt.Errorf("%w: got %d, want %d",
			ErrDimensionMismatch, len(features), len(r.rows[0]))
	}

	type neighbour struct {
		index    int
		distance float64
	}
	neighbours := make([]neighbour, len(r.rows))
	for i, row := range r.rows {
		neighbours[i] = neighbour{index: i, distance: floats.Distance(features, row, 2)}
	}

	// Deterministic order: distance, then insertion index.
	sort.Slice(neighbours, func(i, j int) bool {
		if neighbours[i].distance != neighbours[j].distance {
			return neighbours[i].distance < neighbours[j].distance
		}
		return neighbours[i].index < neighbours[j].index
	})

	var exact []float64
	for _, nb := range neighbours {
		if nb.distance > exactMatchEpsilon {
			break
		}
		exact = append(exact, r.targets[nb.index])
	}
	if len(exact) > 0 {
		return stat.Mean(exact, nil), nil
	}

	k := r.k
	if k > len(neighbours) {
		k = len(neighbours)
	}
	values := make([]float64, k)
	weights := make([]float64, k)
	for i := 0; i < k; i++ {
		values[i] = r.targets[neighbours[i].index]
		weights[i] = 1 / neighbours[i].distance
	}
	return stat.Mean(values, weights), nil
}

// Kind implements Regressor.
func (r *KNN) Kind() string { return KindKNN }

// knnParams is the persisted form of a fitted KNN.
type knnParams struct {
	K       int         `json:"k"`
	Rows    [][]float64 `json:"rows"`
	Targets []float64   `json:"targets"`
}

// MarshalParams implements Regressor.
func (r *KNN) MarshalParams() ([]byte, error) {
	return json.Marshal(knnParams{K: r.k, Rows: r.rows, Targets: r.targets})
}

func unmarshalKNN(data []byte) (*KNN, error) {
	var p knnParams
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("regress: decoding knn params: %w", err)
	}
	if p.K <= 0 {
		p.K = defaultNeighbours
	}
	if len(p.Rows) != len(p.Targets) {
		return nil, fmt.Errorf("regress: knn params inconsistent: %d rows, %d targets",
			len(p.Rows), len(p.Targets))
	}
	return &KNN{k: p.K, rows: p.Rows, targets: p.Targets}, nil
}
