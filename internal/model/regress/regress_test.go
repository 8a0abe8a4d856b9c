package regress

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNewKinds(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{KindKNN, false},
		{KindRidge, false},
		{"forest", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			r, err := New(tt.kind)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownKind) {
					t.Errorf("New(%q) error = %v, want ErrUnknownKind", tt.kind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q) error = %v", tt.kind, err)
			}
			if r.Kind() != tt.kind {
				t.Errorf("Kind() = %q, want %q", r.Kind(), tt.kind)
			}
		})
	}
}

func TestPredictBeforeFit(t *testing.T) {
	for _, kind := range []string{KindKNN, KindRidge} {
		t.Run(kind, func(t *testing.T) {
			r, err := New(kind)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if _, err := r.Predict([]float64{1, 2}); !errors.Is(err, ErrNotFitted) {
				t.Errorf("Predict() error = %v, want ErrNotFitted", err)
			}
		})
	}
}

func TestKNNMemorizesExactMatch(t *testing.T) {
	// Sparse data: the regressor must reproduce a seen input exactly.
	x := mat.NewDense(3, 2, []float64{
		5.0, 1.0,
		15.0, 0.0,
		-2.0, 1.0,
	})
	y := []float64{21.0, 19.5, 22.5}

	r := NewKNN(0)
	if err := r.Fit(x, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	got, err := r.Predict([]float64{5.0, 1.0})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if got != 21.0 {
		t.Errorf("Predict(seen input) = %v, want exactly 21.0", got)
	}
}

func TestKNNInterpolates(t *testing.T) {
	x := mat.NewDense(2, 1, []float64{0, 10})
	y := []float64{20.0, 22.0}

	r := NewKNN(2)
	if err := r.Fit(x, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	got, err := r.Predict([]float64{5})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	// Equidistant neighbours: plain mean.
	if math.Abs(got-21.0) > 1e-9 {
		t.Errorf("Predict(midpoint) = %v, want 21.0", got)
	}

	got, err = r.Predict([]float64{1})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	// Much closer to the first instance: prediction pulled toward 20.
	if got >= 21.0 || got < 20.0 {
		t.Errorf("Predict(near first) = %v, want in [20.0, 21.0)", got)
	}
}

func TestKNNDeterministic(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
		7, 8,
	})
	y := []float64{20, 21, 22, 23}

	r := NewKNN(3)
	if err := r.Fit(x, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	first, err := r.Predict([]float64{2, 3})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := r.Predict([]float64{2, 3})
		if err != nil {
			t.Fatalf("Predict() error = %v", err)
		}
		if again != first {
			t.Fatalf("Predict() not deterministic: %v then %v", first, again)
		}
	}
}

func TestKNNDimensionMismatch(t *testing.T) {
	r := NewKNN(0)
	if err := r.Fit(mat.NewDense(1, 2, []float64{1, 2}), []float64{20}); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	if _, err := r.Predict([]float64{1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Predict() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestKNNFewerInstancesThanK(t *testing.T) {
	r := NewKNN(5)
	if err := r.Fit(mat.NewDense(2, 1, []float64{0, 10}), []float64{20, 22}); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	got, err := r.Predict([]float64{3})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if got < 20 || got > 22 {
		t.Errorf("Predict() = %v, want within target range [20, 22]", got)
	}
}

func TestRidgeRecoversLinearRelation(t *testing.T) {
	// y = 20 + 0.5*x0 - 2*x1, generously sampled. With a small lambda
	// the fit should land close to the true coefficients.
	rows := [][]float64{
		{0, 0}, {1, 0}, {2, 0}, {3, 0},
		{0, 1}, {1, 1}, {2, 1}, {3, 1},
		{4, 0}, {4, 1}, {5, 0}, {5, 1},
	}
	x := mat.NewDense(len(rows), 2, nil)
	y := make([]float64, len(rows))
	for i, row := range rows {
		x.SetRow(i, row)
		y[i] = 20 + 0.5*row[0] - 2*row[1]
	}

	r := NewRidge(1e-6)
	if err := r.Fit(x, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	got, err := r.Predict([]float64{2.5, 1})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	want := 20 + 0.5*2.5 - 2*1.0
	if math.Abs(got-want) > 0.01 {
		t.Errorf("Predict() = %v, want ~%v", got, want)
	}
}

func TestRidgeHandlesConstantFeature(t *testing.T) {
	// A constant column makes plain least squares singular; the
	// regulariser must keep the solve stable.
	x := mat.NewDense(3, 2, []float64{
		1, 1,
		2, 1,
		3, 1,
	})
	y := []float64{20, 21, 22}

	r := NewRidge(0)
	if err := r.Fit(x, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	got, err := r.Predict([]float64{2, 1})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if math.Abs(got-21) > 0.5 {
		t.Errorf("Predict() = %v, want ~21", got)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		5.0, 1.0,
		15.0, 0.0,
		-2.0, 1.0,
	})
	y := []float64{21.0, 19.5, 22.5}

	for _, kind := range []string{KindKNN, KindRidge} {
		t.Run(kind, func(t *testing.T) {
			r, err := New(kind)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if err := r.Fit(x, y); err != nil {
				t.Fatalf("Fit() error = %v", err)
			}

			params, err := r.MarshalParams()
			if err != nil {
				t.Fatalf("MarshalParams() error = %v", err)
			}

			restored, err := Unmarshal(kind, params)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			query := []float64{5.0, 1.0}
			want, err := r.Predict(query)
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			got, err := restored.Predict(query)
			if err != nil {
				t.Fatalf("restored Predict() error = %v", err)
			}
			if got != want {
				t.Errorf("restored Predict() = %v, want %v", got, want)
			}
		})
	}
}

func TestUnmarshalCorruptParams(t *testing.T) {
	for _, kind := range []string{KindKNN, KindRidge} {
		t.Run(kind, func(t *testing.T) {
			if _, err := Unmarshal(kind, []byte(`{broken`)); err == nil {
				t.Error("Unmarshal(corrupt) returned nil error")
			}
		})
	}
}
