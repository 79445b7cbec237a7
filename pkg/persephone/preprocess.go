package persephone

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultZThreshold is the z-score beyond which a load value is an outlier.
const DefaultZThreshold = 3.0

// DefaultMaxRows caps the hourly grid at a little over eleven years.
const DefaultMaxRows = 100_000

// ErrSpanTooLarge is returned when the hourly grid would exceed the row cap.
var ErrSpanTooLarge = errors.New("time span too large")

// Clean forward-fills missing load values. Leading gaps stay NaN.
func Clean(f *Frame) *Frame {
	out := f.Clone()
	if load, ok := out.Column(LoadColumn); ok {
		forwardFill(load)
	}
	return out
}

func forwardFill(values []float64) {
	last := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = last
			continue
		}
		last = v
	}
}

// EnforceHourly reindexes f onto a continuous hourly grid from its first to
// its last timestamp. Inserted hours get a forward-filled load and NaN in
// every other column. Of duplicate timestamps the last row wins; rows off the
// grid are dropped. A grid of more than maxRows hours fails with
// ErrSpanTooLarge before anything is allocated; maxRows <= 0 means
// DefaultMaxRows.
func EnforceHourly(f *Frame, maxRows int) (*Frame, error) {
	if f.Len() == 0 {
		return f.Clone(), nil
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	start := f.Timestamps[0]
	end := f.Timestamps[f.Len()-1]
	for _, ts := range f.Timestamps {
		if ts.Before(start) {
			start = ts
		}
		if ts.After(end) {
			end = ts
		}
	}

	// Unix seconds do not saturate the way time.Duration does past ~292 years.
	span := (end.Unix()-start.Unix())/3600 + 1
	if span > int64(maxRows) {
		return nil, fmt.Errorf("%w: %s to %s needs %d hourly rows, limit %d",
			ErrSpanTooLarge, start.Format(time.DateTime), end.Format(time.DateTime), span, maxRows)
	}
	n := int(end.Sub(start)/time.Hour) + 1
	grid := make([]time.Time, n)
	for i := range grid {
		grid[i] = start.Add(time.Duration(i) * time.Hour)
	}

	// source row per grid slot; later rows overwrite earlier duplicates
	source := make([]int, n)
	for i := range source {
		source[i] = -1
	}
	for row, ts := range f.Timestamps {
		offset := ts.Sub(start)
		if offset%time.Hour != 0 {
			continue
		}
		source[int(offset/time.Hour)] = row
	}

	out := NewFrame(grid)
	for _, name := range f.order {
		col := f.columns[name]
		values := make([]float64, n)
		for i, src := range source {
			if src < 0 {
				values[i] = math.NaN()
			} else {
				values[i] = col[src]
			}
		}
		if name == LoadColumn {
			forwardFill(values)
		}
		out.order = append(out.order, name)
		out.columns[name] = values
	}
	return out, nil
}

// loadStats returns the mean and sample standard deviation of the non-NaN
// values.
func loadStats(values []float64) (mean, std float64, n int) {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) < 2 {
		return math.NaN(), math.NaN(), len(present)
	}
	mean, std = stat.MeanStdDev(present, nil)
	return mean, std, len(present)
}

// DetectOutliers flags values whose z-score magnitude exceeds z. A series with
// zero or undefined spread has no outliers.
func DetectOutliers(values []float64, z float64) []bool {
	flags := make([]bool, len(values))
	mean, std, _ := loadStats(values)
	if math.IsNaN(std) || std == 0 {
		return flags
	}
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		flags[i] = math.Abs((v-mean)/std) > z
	}
	return flags
}

// ClipOutliers clips flagged load values into mean ± z·std. The count of
// clipped values is returned alongside the new frame.
func ClipOutliers(f *Frame, z float64) (*Frame, int) {
	out := f.Clone()
	load, ok := out.Column(LoadColumn)
	if !ok {
		return out, 0
	}
	flags := DetectOutliers(load, z)
	mean, std, _ := loadStats(load)
	lower, upper := mean-z*std, mean+z*std

	clipped := 0
	for i, flagged := range flags {
		if !flagged {
			continue
		}
		load[i] = math.Min(math.Max(load[i], lower), upper)
		clipped++
	}
	return out, clipped
}
