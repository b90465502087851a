// Package benchmark drives workloads across concurrency levels and turns the
// measured wall-clock times into comparable throughput records.
package benchmark

import (
	"context"

	"github.com/TreeWu/mongo-perf/connection"
)

// Workload is one benchmark case.
//
// Reset re-establishes the workload's dataset and must leave the connection
// drained. Run performs the thread's share of the iterations and is called
// concurrently by nthreads workers with distinct thread indexes.
type Workload interface {
	Name() string
	// ReadOnly declares that Run never mutates the dataset, so the suite
	// resets it only before the first level. The declaration is not checked.
	ReadOnly() bool
	Reset(ctx context.Context, conn connection.Connection) error
	Run(ctx context.Context, thread, nthreads int, conn connection.Connection) error
}

// Sink receives each result as soon as its workload finishes the sweep.
type Sink interface {
	Write(ctx context.Context, r Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Result) error

func (f SinkFunc) Write(ctx context.Context, r Result) error { return f(ctx, r) }
