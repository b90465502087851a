// Package report writes benchmark results to files, terminals and result
// stores as they complete.
package report

import (
	"context"
	"time"

	"github.com/TreeWu/mongo-perf/benchmark"
)

// Sink receives every finished result and is closed once the run ends.
type Sink interface {
	benchmark.Sink
	Close(ctx context.Context) error
}

// RunInfo identifies one run in a result store.
type RunInfo struct {
	Label    string `json:"label" bson:"label"`
	Version  string `json:"version" bson:"version"`
	Platform string `json:"platform" bson:"platform"`
	RunDate  string `json:"run_date" bson:"run_date"`
}

// Today returns the run date format stored alongside results.
func Today() string {
	return time.Now().Format("2006-01-02")
}

func (i RunInfo) withDefaults() RunInfo {
	if i.RunDate == "" {
		i.RunDate = Today()
	}
	if i.Version == "" {
		i.Version = "unknown"
	}
	if i.Platform == "" {
		i.Platform = "unknown"
	}
	return i
}
