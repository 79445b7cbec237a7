package persephone

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitLinear_RecoversCoefficients(t *testing.T) {
	n := 50
	f := NewFrame(hourly(t0, n))
	a := make([]float64, n)
	b := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = float64(i)
		b[i] = math.Sin(float64(i))
		y[i] = 2 + 3*a[i] - b[i]
	}
	require.NoError(t, f.Set("a", a))
	require.NoError(t, f.Set("b", b))
	require.NoError(t, f.Set(LoadColumn, y))

	model, err := FitLinear(f, LoadColumn)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, model.Features)
	assert.InDelta(t, 2.0, model.Intercept, 1e-8)
	assert.InDelta(t, 3.0, model.Coefficients[0], 1e-8)
	assert.InDelta(t, -1.0, model.Coefficients[1], 1e-8)

	pred, err := model.Predict(f)
	require.NoError(t, err)
	for i := range pred {
		assert.InDelta(t, y[i], pred[i], 1e-6)
	}
}

func TestFitLinear_CollinearAndConstant(t *testing.T) {
	n := 20
	f := NewFrame(hourly(t0, n))
	a := make([]float64, n)
	c := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = float64(i)
		c[i] = 7
		y[i] = 1 + 4*a[i]
	}
	require.NoError(t, f.Set("a", a))
	require.NoError(t, f.Set("a_copy", append([]float64(nil), a...)))
	require.NoError(t, f.Set("const", c))
	require.NoError(t, f.Set(LoadColumn, y))

	model, err := FitLinear(f, LoadColumn)
	require.NoError(t, err)

	// Minimum-norm solution splits the weight between the copies
	assert.InDelta(t, 2.0, model.Coefficients[0], 1e-8)
	assert.InDelta(t, 2.0, model.Coefficients[1], 1e-8)
	assert.InDelta(t, 0.0, model.Coefficients[2], 1e-8)

	pred, err := model.Predict(f)
	require.NoError(t, err)
	assert.InDelta(t, y[10], pred[10], 1e-6)
}

func TestFitLinear_Exclude(t *testing.T) {
	f := seqFrame(t, 10)
	require.NoError(t, f.Set(HorizonColumn, make([]float64, 10)))
	require.NoError(t, f.Set("x", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}))

	model, err := FitLinear(f, LoadColumn, HorizonColumn)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, model.Features)
}

func TestFitLinear_NoFeatures(t *testing.T) {
	model, err := FitLinear(seqFrame(t, 4), LoadColumn)
	require.NoError(t, err)
	assert.Empty(t, model.Features)
	assert.Equal(t, 2.5, model.Intercept)
}

func TestFitLinear_Errors(t *testing.T) {
	_, err := FitLinear(NewFrame(nil), LoadColumn)
	assert.ErrorIs(t, err, ErrMissingColumns)

	empty := NewFrame(nil)
	require.NoError(t, empty.Set(LoadColumn, nil))
	_, err = FitLinear(empty, LoadColumn)
	assert.ErrorIs(t, err, ErrInsufficientData)

	f := seqFrame(t, 3)
	require.NoError(t, f.Set("x", []float64{1, math.NaN(), 3}))
	_, err = FitLinear(f, LoadColumn)
	assert.Error(t, err)
}

func TestLinearModel_PredictMissingFeature(t *testing.T) {
	model := &LinearModel{Target: LoadColumn, Features: []string{"temperature"}, Coefficients: []float64{1}}
	_, err := model.Predict(seqFrame(t, 3))
	assert.ErrorIs(t, err, ErrMissingColumns)
}
