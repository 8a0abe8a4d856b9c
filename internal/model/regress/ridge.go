package regress

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// defaultLambda is the regularisation strength used when none is
// configured. Small enough not to distort a well-conditioned fit,
// large enough to keep near-collinear sensor features solvable.
const defaultLambda = 1.0

// Ridge is an L2-regularised linear regressor solved via the normal
// equations. The intercept is not penalised.
type Ridge struct {
	lambda float64
	coef   []float64 // intercept first
}

// NewRidge creates a ridge regressor. lambda <= 0 selects the default.
func NewRidge(lambda float64) *Ridge {
	if lambda <= 0 {
		lambda = defaultLambda
	}
	return &Ridge{lambda: lambda}
}

// Fit solves (AᵀA + λI)β = Aᵀy where A is x with a leading column of
// ones for the intercept.
func (r *Ridge) Fit(x *mat.Dense, y []float64) error {
	n, d := x.Dims()
	if n == 0 || d == 0 {
		return fmt.Errorf("%w: empty training matrix", ErrFitFailed)
	}
	if n != len(y) {
		return fmt.Errorf("%w: %d rows but %d targets", ErrFitFailed, n, len(y))
	}

	a := mat.NewDense(n, d+1, nil)
	for i := 0; i < n; i++ {
		a.Set(i, 0, 1)
		for j := 0; j < d; j++ {
			a.Set(i, j+1, x.At(i, j))
		}
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	for j := 1; j <= d; j++ {
		ata.Set(j, j, ata.At(j, j)+r.lambda)
	}

	var aty mat.VecDense
	aty.MulVec(a.T(), mat.NewVecDense(n, y))

	var beta mat.VecDense
	if err := beta.SolveVec(&ata, &aty); err != nil {
		return fmt.Errorf("%w: %v", ErrFitFailed, err)
	}

	r.coef = make([]float64, d+1)
	copy(r.coef, beta.RawVector().Data)
	return nil
}

// Predict implements Regressor.
func (r *Ridge) Predict(features []float64) (float64, error) {
	if len(r.coef) == 0 {
		return 0, ErrNotFitted
	}
	if len(features) != len(r.coef)-1 {
		return 0, fmt.Errorf("%w: got %d, want %d",
			ErrDimensionMismatch, len(features), len(r.coef)-1)
	}
	return r.coef[0] + floats.Dot(r.coef[1:], features), nil
}

// Kind implements Regressor.
func (r *Ridge) Kind() string { return KindRidge }

// ridgeParams is the persisted form of a fitted Ridge.
type ridgeParams struct {
	Lambda float64   `json:"lambda"`
	Coef   []float64 `json:"coef"`
}

// MarshalParams implements Regressor.
func (r *Ridge) MarshalParams() ([]byte, error) {
	return json.Marshal(ridgeParams{Lambda: r.lambda, Coef: r.coef})
}

func unmarshalRidge(data []byte) (*Ridge, error) {
	var p ridgeParams
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("regress: decoding ridge params: %w", err)
	}
	if p.Lambda <= 0 {
		p.Lambda = defaultLambda
	}
	return &Ridge{lambda: p.Lambda, coef: p.Coef}, nil
}
