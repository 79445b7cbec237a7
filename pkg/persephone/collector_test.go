package persephone

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_QueryRange(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/query_range", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotQuery = r.Form.Get("query")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","data":{"resultType":"matrix","result":[
			{"metric":{"zone":"a"},"values":[[1704070800,"10"],[1704067200,"12"]]},
			{"metric":{"zone":"b"},"values":[[1704067200,"5"]]}
		]}}`))
	}))
	defer srv.Close()

	c, err := NewPrometheusCollector(srv.URL, nil)
	require.NoError(t, err)

	end := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	records, err := c.QueryRange(context.Background(), "sum by (zone) (grid_load_mw)", end.Add(-time.Hour), end, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "sum by (zone) (grid_load_mw)", gotQuery)

	require.Len(t, records, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), records[0].Timestamp)
	assert.Equal(t, 17.0, records[0].Load)
	assert.Equal(t, 10.0, records[1].Load)

	var buf bytes.Buffer
	require.NoError(t, RecordsToCSV(&buf, records))
	assert.Equal(t, "timestamp,load\n2024-01-01 00:00:00,17\n2024-01-01 01:00:00,10\n", buf.String())

	f, err := LoadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
}

func TestPrometheusCollector_QueryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","errorType":"bad_data","error":"parse error"}`))
	}))
	defer srv.Close()

	c, err := NewPrometheusCollector(srv.URL, nil)
	require.NoError(t, err)

	_, err = c.QueryRange(context.Background(), "sum(", time.Now().Add(-time.Hour), time.Now(), time.Minute)
	assert.Error(t, err)
}
