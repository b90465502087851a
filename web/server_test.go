package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TreeWu/mongo-perf/benchmark"
	"github.com/TreeWu/mongo-perf/report"
)

type fakeReader struct {
	runs    []report.Run
	err     error
	filters []report.RunFilter
}

func (f *fakeReader) Runs(ctx context.Context, filter report.RunFilter) ([]report.Run, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	runs := f.runs
	if filter.Limit > 0 && int64(len(runs)) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

func run(date string, ops float64) report.Run {
	return report.Run{
		RunInfo: report.RunInfo{Label: "nightly", Version: "7.0.2", Platform: "Linux", RunDate: date},
		Results: []benchmark.Result{
			benchmark.NewResult("Insert.Empty", int(ops), []int{1}, []float64{1}),
		},
	}
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func newServer(reader *fakeReader) *Server {
	gin.SetMode(gin.TestMode)
	return NewServer(":0", reader)
}

func TestResults(t *testing.T) {
	reader := &fakeReader{runs: []report.Run{run("2026-10-16", 200), run("2026-10-15", 100)}}
	s := newServer(reader)

	w := get(t, s, "/results?label=nightly&platform=Linux&limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, report.RunFilter{Label: "nightly", Platform: "Linux", Limit: 10}, reader.filters[0])

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "2026-10-16", body[0]["run_date"])
	assert.Equal(t, "nightly", body[0]["label"])

	w = get(t, s, "/results?limit=ten")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResults_Empty(t *testing.T) {
	w := get(t, newServer(&fakeReader{}), "/results")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRaw(t *testing.T) {
	reader := &fakeReader{runs: []report.Run{run("2026-10-16", 200), run("2026-10-15", 100)}}
	s := newServer(reader)

	w := get(t, s, "/raw?label=nightly")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), reader.filters[0].Limit)
	var body struct {
		RunDate string             `json:"run_date"`
		Results []benchmark.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "2026-10-16", body.RunDate)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "Insert.Empty", body.Results[0].Name)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/raw").Code)
	assert.Equal(t, http.StatusNotFound, get(t, newServer(&fakeReader{}), "/raw?label=x").Code)
}

func TestHistory(t *testing.T) {
	reader := &fakeReader{runs: []report.Run{run("2026-10-16", 200), run("2026-10-15", 100)}}
	s := newServer(reader)

	w := get(t, s, "/history?name=Insert.Empty")
	require.Equal(t, http.StatusOK, w.Code)
	var body HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Insert.Empty", body.Name)
	require.Len(t, body.Points, 2)
	assert.Equal(t, "7.0.2@2026-10-15", body.Points[0].Revision)
	assert.Equal(t, 100.0, body.Points[0].OpsPerSec)
	assert.Equal(t, 200.0, body.Points[1].OpsPerSec)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/history").Code)
}

func TestStoreFailure(t *testing.T) {
	s := newServer(&fakeReader{err: errors.New("server selection timeout")})
	w := get(t, s, "/results")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "server selection timeout")
}
