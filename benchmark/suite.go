package benchmark

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/TreeWu/mongo-perf/connection"
)

// Suite runs registered workloads in registration order over a fixed sweep of
// thread counts.
type Suite struct {
	conn      connection.Connection
	levels    []int
	sink      Sink
	log       *log.Entry
	workloads []Workload
}

type Option func(*Suite)

// WithLevels overrides DefaultLevels.
func WithLevels(levels ...int) Option {
	return func(s *Suite) {
		s.levels = append([]int(nil), levels...)
	}
}

// WithSink sets where finished results are emitted.
func WithSink(sink Sink) Option {
	return func(s *Suite) {
		s.sink = sink
	}
}

func WithLogger(entry *log.Entry) Option {
	return func(s *Suite) {
		s.log = entry
	}
}

func NewSuite(conn connection.Connection, opts ...Option) *Suite {
	s := &Suite{
		conn:   conn,
		levels: append([]int(nil), DefaultLevels...),
		log:    log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register appends workloads. Registration order is run order and output order.
func (s *Suite) Register(ws ...Workload) {
	s.workloads = append(s.workloads, ws...)
}

func (s *Suite) Workloads() []Workload {
	return append([]Workload(nil), s.workloads...)
}

func (s *Suite) Levels() []int {
	return append([]int(nil), s.levels...)
}

// Validate reports every configuration problem at once as a *ConfigError.
func (s *Suite) Validate() error {
	var result *multierror.Error
	if s.conn == nil {
		result = multierror.Append(result, fmt.Errorf("no connection"))
	} else {
		if s.conn.Iterations() <= 0 {
			result = multierror.Append(result, fmt.Errorf("iterations must be positive, got %d", s.conn.Iterations()))
		}
		if err := ValidateLevels(s.levels, s.conn.Shards()); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if len(s.workloads) == 0 {
		result = multierror.Append(result, fmt.Errorf("no workloads registered"))
	}
	seen := make(map[string]bool, len(s.workloads))
	for _, w := range s.workloads {
		name := w.Name()
		if name == "" {
			result = multierror.Append(result, fmt.Errorf("workload with an empty name"))
			continue
		}
		if seen[name] {
			result = multierror.Append(result, fmt.Errorf("duplicate workload name %q", name))
		}
		seen[name] = true
	}
	if err := result.ErrorOrNil(); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

// RunAll validates the suite and sweeps every workload. Each result is handed
// to the sink as soon as its workload completes. The first reset, drain or
// worker failure stops the run with a *FatalError; results emitted before it
// are returned alongside.
func (s *Suite) RunAll(ctx context.Context) ([]Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(s.workloads))
	for _, w := range s.workloads {
		r, err := s.run(ctx, w)
		if err != nil {
			return results, err
		}
		if s.sink != nil {
			if err := s.sink.Write(ctx, r); err != nil {
				return results, fmt.Errorf("emit %s: %w", r.Name, err)
			}
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *Suite) run(ctx context.Context, w Workload) (Result, error) {
	name := w.Name()
	logger := s.log.WithField("workload", name)
	logger.Infof("########## %s ##########", name)

	elapsed := make([]float64, len(s.levels))
	for i, n := range s.levels {
		if i == 0 || !w.ReadOnly() {
			if err := w.Reset(ctx, s.conn); err != nil {
				return Result{}, &FatalError{Workload: name, Threads: n, Err: fmt.Errorf("reset: %w", err)}
			}
			if err := s.conn.Drain(ctx, connection.AllShards); err != nil {
				return Result{}, &FatalError{Workload: name, Threads: n, Err: fmt.Errorf("drain after reset: %w", err)}
			}
		}
		t, err := RunConcurrent(ctx, w, n, s.conn)
		if err != nil {
			return Result{}, &FatalError{Workload: name, Threads: n, Err: err}
		}
		elapsed[i] = t
		logger.WithFields(log.Fields{
			"threads": n,
			"elapsed": time.Duration(t * float64(time.Second)),
		}).Debug("level done")
	}
	return NewResult(name, s.conn.Iterations(), s.levels, elapsed), nil
}
