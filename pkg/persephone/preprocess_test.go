package persephone

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourly(start time.Time, n int) []time.Time {
	ts := make([]time.Time, n)
	for i := range ts {
		ts[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return ts
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) // a Monday

func TestClean_ForwardFill(t *testing.T) {
	f := NewFrame(hourly(t0, 5))
	nan := math.NaN()
	require.NoError(t, f.Set(LoadColumn, []float64{nan, 1, nan, nan, 4}))

	out := Clean(f)
	load, _ := out.Column(LoadColumn)
	assert.True(t, math.IsNaN(load[0]))
	assert.Equal(t, []float64{1, 1, 1, 4}, load[1:])

	// Input untouched
	orig, _ := f.Column(LoadColumn)
	assert.True(t, math.IsNaN(orig[2]))
}

func TestEnforceHourly(t *testing.T) {
	ts := []time.Time{
		t0,
		t0.Add(time.Hour),
		t0.Add(time.Hour),        // duplicate: last wins
		t0.Add(90 * time.Minute), // off grid
		t0.Add(4 * time.Hour),
	}
	f := NewFrame(ts)
	require.NoError(t, f.Set(LoadColumn, []float64{10, 11, 12, 99, 14}))
	require.NoError(t, f.Set("temperature", []float64{1, 2, 3, 4, 5}))

	out, err := EnforceHourly(f, 0)
	require.NoError(t, err)
	require.Equal(t, 5, out.Len())
	assert.Equal(t, hourly(t0, 5), out.Timestamps)

	load, _ := out.Column(LoadColumn)
	assert.Equal(t, []float64{10, 12, 12, 12, 14}, load)

	temp, _ := out.Column("temperature")
	assert.Equal(t, 3.0, temp[1])
	assert.True(t, math.IsNaN(temp[2]))
	assert.True(t, math.IsNaN(temp[3]))
}

func TestEnforceHourly_Empty(t *testing.T) {
	out, err := EnforceHourly(NewFrame(nil), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestEnforceHourly_SpanTooLarge(t *testing.T) {
	// Two rows 250 years apart would need 2,191,465 hourly rows
	f, err := LoadCSV(strings.NewReader("timestamp,load\n1900-01-01 00:00:00,10\n2150-01-01 00:00:00,12\n"))
	require.NoError(t, err)

	out, err := EnforceHourly(f, 0)
	assert.ErrorIs(t, err, ErrSpanTooLarge)
	assert.Contains(t, err.Error(), "2191465")
	assert.Nil(t, out)
}

func TestEnforceHourly_MaxRows(t *testing.T) {
	f := NewFrame([]time.Time{t0, t0.Add(9 * time.Hour)})
	require.NoError(t, f.Set(LoadColumn, []float64{1, 2}))

	out, err := EnforceHourly(f, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, out.Len())

	_, err = EnforceHourly(f, 9)
	assert.ErrorIs(t, err, ErrSpanTooLarge)
}

func TestOutliers(t *testing.T) {
	values := make([]float64, 21)
	for i := range values {
		values[i] = 10
	}
	values[7] = 1000

	flags := DetectOutliers(values, DefaultZThreshold)
	for i, flagged := range flags {
		assert.Equal(t, i == 7, flagged, "index %d", i)
	}

	f := NewFrame(hourly(t0, len(values)))
	require.NoError(t, f.Set(LoadColumn, values))
	out, clipped := ClipOutliers(f, DefaultZThreshold)
	assert.Equal(t, 1, clipped)

	mean, std, _ := loadStats(values)
	load, _ := out.Column(LoadColumn)
	assert.InDelta(t, mean+3*std, load[7], 1e-9)
	assert.Less(t, load[7], 1000.0)
	assert.Equal(t, 10.0, load[0])
}

func TestOutliers_ConstantSeries(t *testing.T) {
	flags := DetectOutliers([]float64{5, 5, 5, 5}, 3)
	assert.Equal(t, []bool{false, false, false, false}, flags)
	assert.Equal(t, []bool{false}, DetectOutliers([]float64{5}, 3))
}
