package persephone

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"time"
)

// TimestampLayout is used when writing frames back to CSV.
const TimestampLayout = "2006-01-02 15:04:05"

// Frame is a time-indexed table of float columns. Missing values are NaN.
type Frame struct {
	Timestamps []time.Time
	columns    map[string][]float64
	order      []string
}

// NewFrame creates a frame over timestamps with no columns.
func NewFrame(timestamps []time.Time) *Frame {
	return &Frame{
		Timestamps: timestamps,
		columns:    make(map[string][]float64),
	}
}

func (f *Frame) Len() int {
	return len(f.Timestamps)
}

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	return slices.Clone(f.order)
}

func (f *Frame) Column(name string) ([]float64, bool) {
	col, ok := f.columns[name]
	return col, ok
}

func (f *Frame) HasColumn(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// Set adds or replaces a column. values must have one entry per row.
func (f *Frame) Set(name string, values []float64) error {
	if name == TimestampColumn {
		return fmt.Errorf("column name %q is reserved", name)
	}
	if len(values) != f.Len() {
		return fmt.Errorf("column %q has %d values, frame has %d rows", name, len(values), f.Len())
	}
	if _, ok := f.columns[name]; !ok {
		f.order = append(f.order, name)
	}
	f.columns[name] = values
	return nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := NewFrame(slices.Clone(f.Timestamps))
	for _, name := range f.order {
		out.order = append(out.order, name)
		out.columns[name] = slices.Clone(f.columns[name])
	}
	return out
}

// Slice returns rows [i, j) as a new frame.
func (f *Frame) Slice(i, j int) *Frame {
	out := NewFrame(slices.Clone(f.Timestamps[i:j]))
	for _, name := range f.order {
		out.order = append(out.order, name)
		out.columns[name] = slices.Clone(f.columns[name][i:j])
	}
	return out
}

// Filter returns the rows where keep is true.
func (f *Frame) Filter(keep []bool) *Frame {
	var ts []time.Time
	for i, k := range keep {
		if k {
			ts = append(ts, f.Timestamps[i])
		}
	}
	out := NewFrame(ts)
	for _, name := range f.order {
		col := f.columns[name]
		kept := make([]float64, 0, len(ts))
		for i, k := range keep {
			if k {
				kept = append(kept, col[i])
			}
		}
		out.order = append(out.order, name)
		out.columns[name] = kept
	}
	return out
}

// WriteCSV writes the frame with a leading timestamp column. NaN cells are
// written empty.
func (f *Frame) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	header := append([]string{TimestampColumn}, f.order...)
	if err := writer.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i, ts := range f.Timestamps {
		row[0] = ts.Format(TimestampLayout)
		for j, name := range f.order {
			v := f.columns[name][i]
			if math.IsNaN(v) {
				row[j+1] = ""
			} else {
				row[j+1] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
