package persephone

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var ErrInsufficientData = errors.New("insufficient data to train")

// LinearModel is an ordinary least-squares regression with intercept.
type LinearModel struct {
	Target       string    `json:"target"`
	Features     []string  `json:"features"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// FitLinear regresses target on every other column of f except exclude. The
// features are centred and solved with an SVD, so collinear or constant
// columns get the minimum-norm solution instead of failing.
func FitLinear(f *Frame, target string, exclude ...string) (*LinearModel, error) {
	y, ok := f.Column(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, target)
	}
	n := f.Len()
	if n == 0 {
		return nil, ErrInsufficientData
	}
	if hasNaN(y) {
		return nil, fmt.Errorf("target %s contains missing values", target)
	}

	var features []string
	for _, name := range f.Columns() {
		if name == target || slices.Contains(exclude, name) {
			continue
		}
		features = append(features, name)
	}

	model := &LinearModel{
		Target:       target,
		Features:     features,
		Coefficients: make([]float64, len(features)),
	}
	yMean := stat.Mean(y, nil)
	if len(features) == 0 {
		model.Intercept = yMean
		return model, nil
	}

	p := len(features)
	xMeans := make([]float64, p)
	x := mat.NewDense(n, p, nil)
	for j, name := range features {
		col, _ := f.Column(name)
		if hasNaN(col) {
			return nil, fmt.Errorf("feature %s contains missing values", name)
		}
		xMeans[j] = stat.Mean(col, nil)
		for i, v := range col {
			x.Set(i, j, v-xMeans[j])
		}
	}
	yc := make([]float64, n)
	for i, v := range y {
		yc[i] = v - yMean
	}

	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return nil, errors.New("svd factorization failed")
	}
	rcond := math.Nextafter(1, 2) - 1
	rank := svd.Rank(rcond * float64(max(n, p)))
	if rank > 0 {
		var beta mat.VecDense
		svd.SolveVecTo(&beta, mat.NewVecDense(n, yc), rank)
		for j := range model.Coefficients {
			model.Coefficients[j] = beta.AtVec(j)
		}
	}
	model.Intercept = yMean - floats.Dot(model.Coefficients, xMeans)
	return model, nil
}

// Predict evaluates the model on every row of f.
func (m *LinearModel) Predict(f *Frame) ([]float64, error) {
	cols := make([][]float64, len(m.Features))
	for j, name := range m.Features {
		col, ok := f.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: feature %s", ErrMissingColumns, name)
		}
		cols[j] = col
	}
	out := make([]float64, f.Len())
	for i := range out {
		v := m.Intercept
		for j, col := range cols {
			v += m.Coefficients[j] * col[i]
		}
		out[i] = v
	}
	return out, nil
}
