package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v7"

	"github.com/TreeWu/mongo-perf/benchmark"
)

// ElasticsearchConfig 配置
type ElasticsearchConfig struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
	Transport http.RoundTripper
}

// ElasticsearchStore indexes one document per result, keyed by
// label/run_date/name so a rerun on the same day overwrites it.
type ElasticsearchStore struct {
	client *elasticsearch.Client
	index  string
	info   RunInfo
}

type esDocument struct {
	RunInfo
	Name    string                           `json:"name"`
	Results map[string]benchmark.LevelResult `json:"results"`
	MaxOps  float64                          `json:"max_ops_per_sec"`
}

func NewElasticsearchStore(cfg ElasticsearchConfig, info RunInfo) (*ElasticsearchStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Elasticsearch 客户端失败: %w", err)
	}
	index := cfg.Index
	if index == "" {
		index = "bench_results"
	}
	return &ElasticsearchStore{client: client, index: index, info: info.withDefaults()}, nil
}

// DocumentID is the id a result is indexed under.
func (e *ElasticsearchStore) DocumentID(name string) string {
	return fmt.Sprintf("%s/%s/%s", e.info.Label, e.info.RunDate, name)
}

func (e *ElasticsearchStore) Write(ctx context.Context, r benchmark.Result) error {
	doc := esDocument{
		RunInfo: e.info,
		Name:    r.Name,
		Results: make(map[string]benchmark.LevelResult, len(r.Levels)),
		MaxOps:  r.MaxOpsPerSec(),
	}
	for _, l := range r.Levels {
		doc.Results[fmt.Sprint(l.Threads)] = l
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := e.client.Index(e.index, bytes.NewReader(body),
		e.client.Index.WithContext(ctx),
		e.client.Index.WithDocumentID(e.DocumentID(r.Name)),
	)
	if err != nil {
		return fmt.Errorf("store %s: %w", r.Name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("store %s: %s", r.Name, res.String())
	}
	return nil
}

func (e *ElasticsearchStore) Close(ctx context.Context) error {
	return nil
}
