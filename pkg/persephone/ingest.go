package persephone

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	TimestampColumn = "timestamp"
	LoadColumn      = "load"
	// HorizonColumn optionally carries the lead-time step of each row.
	HorizonColumn = "horizon"
)

var (
	RequiredColumns = []string{TimestampColumn, LoadColumn}
	OptionalColumns = []string{"temperature", "humidity", "wind_speed", "day_of_week", "is_holiday"}
)

var (
	ErrMissingColumns = errors.New("missing required columns")
	ErrBadTimestamp   = errors.New("unparsable timestamp")
	ErrBadValue       = errors.New("unparsable value")
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
}

// optionalPresent lists the known exogenous columns f carries, in
// OptionalColumns order.
func optionalPresent(f *Frame) []string {
	var found []string
	for _, name := range OptionalColumns {
		if f.HasColumn(name) {
			found = append(found, name)
		}
	}
	return found
}

// ParseTimestamp accepts the common ISO-like layouts. Values without a zone
// are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// LoadCSV reads a load history. timestamp and load are required; every other
// column whose cells all parse as numbers (or true/false) is kept. Empty cells
// become NaN. Rows are returned sorted by timestamp.
func LoadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumns)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		index[header[i]] = i
	}

	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	type row struct {
		ts    time.Time
		cells []string
	}
	rows := make([]row, 0, len(records))
	tsIdx := index[TimestampColumn]
	for i, rec := range records {
		ts, err := ParseTimestamp(rec[tsIdx])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		rows = append(rows, row{ts: ts, cells: rec})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ts.Before(rows[j].ts) })

	timestamps := make([]time.Time, len(rows))
	for i, r := range rows {
		timestamps[i] = r.ts
	}
	frame := NewFrame(timestamps)

	for col, name := range header {
		if name == TimestampColumn || name == "" || frame.HasColumn(name) {
			continue
		}
		values := make([]float64, len(rows))
		numeric := true
		for i, r := range rows {
			v, err := parseCell(r.cells[col])
			if err != nil {
				if name == LoadColumn {
					return nil, fmt.Errorf("column %s: %w", name, err)
				}
				numeric = false
				break
			}
			values[i] = v
		}
		if !numeric {
			continue
		}
		if err := frame.Set(name, values); err != nil {
			return nil, err
		}
	}

	return frame, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na", "null":
		return math.NaN(), nil
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadValue, s)
	}
	return v, nil
}
