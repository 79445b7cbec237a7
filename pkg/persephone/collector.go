package persephone

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/gridcast/stlf/pkg/hermes"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// LoadRecord is one observed load sample.
type LoadRecord struct {
	Timestamp time.Time
	Load      float64
}

// LoadCollector fetches historical load from a metrics backend.
type LoadCollector interface {
	// QueryRange fetches samples within a time range
	QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]LoadRecord, error)
}

// PrometheusCollector implements LoadCollector for Prometheus
type PrometheusCollector struct {
	api    v1.API
	logger hermes.Logger
}

// NewPrometheusCollector creates a new collector using the given address
func NewPrometheusCollector(address string, logger hermes.Logger) (*PrometheusCollector, error) {
	client, err := api.NewClient(api.Config{
		Address: address,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	if logger == nil {
		logger = hermes.NopLogger{}
	}

	return &PrometheusCollector{
		api:    v1.NewAPI(client),
		logger: logger,
	}, nil
}

// QueryRange fetches samples from Prometheus. When the query returns several
// series they are summed per timestamp.
func (c *PrometheusCollector) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]LoadRecord, error) {
	r := v1.Range{
		Start: start,
		End:   end,
		Step:  step,
	}

	result, warnings, err := c.api.QueryRange(ctx, query, r)
	if err != nil {
		return nil, fmt.Errorf("prometheus query failed: %w", err)
	}
	if len(warnings) > 0 {
		c.logger.Warn(ctx, "prometheus returned warnings", map[string]any{"query": query, "warnings": []string(warnings)})
	}

	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result format: %T", result)
	}

	sums := make(map[model.Time]float64)
	for _, stream := range matrix {
		for _, pair := range stream.Values {
			sums[pair.Timestamp] += float64(pair.Value)
		}
	}

	records := make([]LoadRecord, 0, len(sums))
	for ts, v := range sums {
		records = append(records, LoadRecord{Timestamp: ts.Time().UTC(), Load: v})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })

	return records, nil
}

// RecordsToCSV writes records in the timestamp,load layout LoadCSV accepts.
func RecordsToCSV(w io.Writer, records []LoadRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{TimestampColumn, LoadColumn}); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{r.Timestamp.Format(TimestampLayout), strconv.FormatFloat(r.Load, 'f', -1, 64)}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
