package benchmark

import (
	"context"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestResultProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property 1: the baseline level always has a speedup of exactly one
	properties.Property("baseline speedup is 1.0", prop.ForAll(
		func(elapsed []float64, iterations int) bool {
			levels := ascending(len(elapsed))
			r := NewResult("w", iterations, levels, elapsed)
			return r.Levels[0].Speedup == 1.0
		},
		gen.SliceOfN(7, gen.Float64Range(1e-6, 1000)),
		gen.IntRange(1, 1000000),
	))

	// Property 2: ops/sec and speedup follow from the measured times
	properties.Property("arithmetic identities hold", prop.ForAll(
		func(elapsed []float64, iterations int) bool {
			levels := ascending(len(elapsed))
			r := NewResult("w", iterations, levels, elapsed)
			for i, l := range r.Levels {
				if l.Time <= 0 || l.Threads != levels[i] {
					return false
				}
				if math.Abs(l.OpsPerSec*l.Time-float64(iterations)) > 1e-6*float64(iterations) {
					return false
				}
				if math.Abs(l.Speedup*l.Time-r.Levels[0].Time) > 1e-9*r.Levels[0].Time {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(4, gen.Float64Range(1e-6, 1000)),
		gen.IntRange(1, 1000000),
	))

	properties.TestingRun(t)
}

func TestRunnerProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property 3: n workers see exactly the thread indexes 0..n-1
	properties.Property("runner launches exactly n distinct workers", prop.ForAll(
		func(n int) bool {
			w := &fakeWorkload{name: "count"}
			elapsed, err := RunConcurrent(context.Background(), w, n, newConn(16))
			if err != nil || elapsed <= 0 || len(w.calls) != n {
				return false
			}
			for i, thread := range w.callsFor(n) {
				if thread != i {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 16),
	))

	properties.TestingRun(t)
}

func ascending(n int) []int {
	levels := make([]int, n)
	for i := range levels {
		levels[i] = i + 1
	}
	return levels
}
