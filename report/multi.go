package report

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/TreeWu/mongo-perf/benchmark"
)

// Multi fans every result out to several sinks in parallel.
type Multi []Sink

func (m Multi) Write(ctx context.Context, r benchmark.Result) error {
	group := errgroup.Group{}
	for _, s := range m {
		s := s
		group.Go(func() error {
			return s.Write(ctx, r)
		})
	}
	return group.Wait()
}

// Close closes every sink, even after a failure, and reports all errors.
func (m Multi) Close(ctx context.Context) error {
	var result *multierror.Error
	for _, s := range m {
		if err := s.Close(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
