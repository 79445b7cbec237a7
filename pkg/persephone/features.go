package persephone

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

var (
	DefaultLags    = []int{1, 24, 168}
	DefaultWindows = []int{3, 24, 168}
)

// Calendar feature columns.
const (
	HourColumn      = "hour"
	DayColumn       = "day"
	WeekdayColumn   = "weekday"
	MonthColumn     = "month"
	IsWeekendColumn = "is_weekend"
)

type FeatureConfig struct {
	Lags    []int
	Windows []int
}

func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{Lags: DefaultLags, Windows: DefaultWindows}
}

func LagColumn(lag int) string { return fmt.Sprintf("load_lag_%d", lag) }
func RollingMeanColumn(w int) string { return fmt.Sprintf("load_roll_mean_%d", w) }
func RollingStdColumn(w int) string { return fmt.Sprintf("load_roll_std_%d", w) }

// BuildFeatures adds lag, rolling and calendar features in that order.
func BuildFeatures(f *Frame, cfg FeatureConfig) (*Frame, error) {
	out, err := AddLagFeatures(f, cfg.Lags)
	if err != nil {
		return nil, err
	}
	if out, err = AddRollingFeatures(out, cfg.Windows); err != nil {
		return nil, err
	}
	return AddCalendarFeatures(out), nil
}

// AddLagFeatures adds load shifted by each lag. The first lag rows are NaN.
func AddLagFeatures(f *Frame, lags []int) (*Frame, error) {
	load, ok := f.Column(LoadColumn)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, LoadColumn)
	}
	out := f.Clone()
	for _, lag := range lags {
		if lag <= 0 {
			return nil, fmt.Errorf("lag must be positive, got %d", lag)
		}
		values := make([]float64, len(load))
		for i := range values {
			if i < lag {
				values[i] = math.NaN()
			} else {
				values[i] = load[i-lag]
			}
		}
		if err := out.Set(LagColumn(lag), values); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AddRollingFeatures adds the trailing mean and sample standard deviation of
// load over each window. A window that is incomplete or holds a NaN yields NaN.
func AddRollingFeatures(f *Frame, windows []int) (*Frame, error) {
	load, ok := f.Column(LoadColumn)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, LoadColumn)
	}
	out := f.Clone()
	for _, w := range windows {
		if w <= 0 {
			return nil, fmt.Errorf("window must be positive, got %d", w)
		}
		means := make([]float64, len(load))
		stds := make([]float64, len(load))
		for i := range load {
			means[i], stds[i] = math.NaN(), math.NaN()
			if i < w-1 || hasNaN(load[i-w+1:i+1]) {
				continue
			}
			window := load[i-w+1 : i+1]
			if w == 1 {
				means[i] = window[0]
				continue
			}
			means[i], stds[i] = stat.MeanStdDev(window, nil)
		}
		if err := out.Set(RollingMeanColumn(w), means); err != nil {
			return nil, err
		}
		if err := out.Set(RollingStdColumn(w), stds); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AddCalendarFeatures derives hour, day of month, weekday (Monday = 0), month
// and a weekend flag from the timestamps.
func AddCalendarFeatures(f *Frame) *Frame {
	out := f.Clone()
	n := f.Len()
	hour := make([]float64, n)
	day := make([]float64, n)
	weekday := make([]float64, n)
	month := make([]float64, n)
	weekend := make([]float64, n)
	for i, ts := range f.Timestamps {
		hour[i] = float64(ts.Hour())
		day[i] = float64(ts.Day())
		wd := (int(ts.Weekday()) + 6) % 7
		weekday[i] = float64(wd)
		month[i] = float64(ts.Month())
		if ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
			weekend[i] = 1
		}
	}
	// lengths always match
	_ = out.Set(HourColumn, hour)
	_ = out.Set(DayColumn, day)
	_ = out.Set(WeekdayColumn, weekday)
	_ = out.Set(MonthColumn, month)
	_ = out.Set(IsWeekendColumn, weekend)
	return out
}

// DropIncomplete removes every row holding a NaN in any column.
func DropIncomplete(f *Frame) *Frame {
	keep := make([]bool, f.Len())
	for i := range keep {
		keep[i] = true
		for _, name := range f.order {
			if math.IsNaN(f.columns[name][i]) {
				keep[i] = false
				break
			}
		}
	}
	return f.Filter(keep)
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
