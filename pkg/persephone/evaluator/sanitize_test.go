package evaluator

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertNoNonFinite(t *testing.T, v any) {
	t.Helper()
	switch x := v.(type) {
	case float64:
		assert.False(t, math.IsNaN(x) || math.IsInf(x, 0), "non-finite leaf %v", x)
	case float32:
		f := float64(x)
		assert.False(t, math.IsNaN(f) || math.IsInf(f, 0), "non-finite leaf %v", x)
	case map[string]any:
		for _, child := range x {
			assertNoNonFinite(t, child)
		}
	case []any:
		for _, child := range x {
			assertNoNonFinite(t, child)
		}
	}
}

func TestSanitize_NestedStructures(t *testing.T) {
	type extra struct {
		Score  float64   `json:"score"`
		Series []float64 `json:"series,omitempty"`
		Hidden float64   `json:"-"`
		At     time.Time `json:"at"`
	}
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	in := map[string]any{
		"a": math.NaN(),
		"b": math.Inf(-1),
		"c": 1.5,
		"d": []any{math.Inf(1), 2.0, map[string]float64{"x": math.NaN(), "y": 3}},
		"e": [2]float32{float32(math.NaN()), 4},
		"f": &extra{Score: math.NaN(), Series: []float64{1, math.NaN()}, Hidden: 9, At: at},
		"g": map[int]float64{7: math.Inf(1)},
		"h": "stable",
		"i": nil,
	}

	out, ok := Sanitize(in).(map[string]any)
	require.True(t, ok)
	assertNoNonFinite(t, out)

	assert.Nil(t, out["a"])
	assert.Nil(t, out["b"])
	assert.Equal(t, 1.5, out["c"])
	assert.Equal(t, []any{nil, 2.0, map[string]any{"x": nil, "y": 3.0}}, out["d"])
	assert.Equal(t, []any{nil, float32(4)}, out["e"])
	assert.Equal(t, map[string]any{"score": nil, "series": []any{1.0, nil}, "at": at}, out["f"])
	assert.Equal(t, map[string]any{"7": nil}, out["g"])
	assert.Equal(t, "stable", out["h"])
	assert.Nil(t, out["i"])
}

func TestReport_SanitizedEncodesAsJSON(t *testing.T) {
	report, err := Evaluate(context.Background(), &Input{
		Actual:    []float64{0, 0, 0},
		Predicted: []float64{1, 2, 3},
	})
	require.NoError(t, err)

	// Raw sentinels cannot be encoded.
	_, err = json.Marshal(report)
	require.Error(t, err)

	data, err := json.Marshal(report.Sanitized())
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 6)
	assert.Nil(t, decoded[SectionAccuracy][KeyMAPE])
	assert.Equal(t, 2.0, decoded[SectionAccuracy][KeyMAE])
	assert.Equal(t, "unknown", decoded[SectionDrift][DriftStatusKey])
	assert.Len(t, decoded[SectionHorizon], DefaultMaxHorizon)
}
