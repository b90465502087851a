package report

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type esRequest struct {
	method string
	path   string
	body   map[string]interface{}
}

func esServer(t *testing.T, status int) (*httptest.Server, func() []esRequest) {
	var (
		mu       sync.Mutex
		requests []esRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)
		mu.Lock()
		requests = append(requests, esRequest{method: r.Method, path: r.URL.Path, body: body})
		mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"error":{"type":"mapper_parsing_exception"},"status":400}`))
			return
		}
		_, _ = w.Write([]byte(`{"_index":"bench_results","result":"created"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []esRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]esRequest(nil), requests...)
	}
}

func TestElasticsearchStore(t *testing.T) {
	srv, requests := esServer(t, http.StatusCreated)
	store, err := NewElasticsearchStore(ElasticsearchConfig{Addresses: []string{srv.URL}},
		RunInfo{Label: "nightly", Version: "7.0.2", Platform: "Linux", RunDate: "2026-10-16"})
	require.NoError(t, err)
	assert.Equal(t, "nightly/2026-10-16/Insert.Empty", store.DocumentID("Insert.Empty"))

	require.NoError(t, store.Write(context.Background(), insertEmpty))

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.True(t, strings.HasPrefix(reqs[0].path, "/bench_results/_doc/"), reqs[0].path)

	body := reqs[0].body
	assert.Equal(t, "Insert.Empty", body["name"])
	assert.Equal(t, "nightly", body["label"])
	assert.Equal(t, 400.0, body["max_ops_per_sec"])
	levels, ok := body["results"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, levels, "1")
	assert.Contains(t, levels, "2")
}

func TestElasticsearchStore_Rejected(t *testing.T) {
	srv, _ := esServer(t, http.StatusBadRequest)
	store, err := NewElasticsearchStore(ElasticsearchConfig{Addresses: []string{srv.URL}, Index: "runs"}, RunInfo{})
	require.NoError(t, err)
	assert.ErrorContains(t, store.Write(context.Background(), insertEmpty), "store Insert.Empty")
}
