package benchmark

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// DefaultLevels is the thread count sweep. The first entry is the speedup
// baseline.
var DefaultLevels = []int{1, 2, 4, 6, 8, 12, 16}

// ValidateLevels checks that levels is a non-empty, strictly ascending run of
// positive integers no larger than maxThreads.
func ValidateLevels(levels []int, maxThreads int) error {
	var result *multierror.Error
	if len(levels) == 0 {
		return multierror.Append(result, fmt.Errorf("no concurrency levels")).ErrorOrNil()
	}
	for i, n := range levels {
		if n < 1 {
			result = multierror.Append(result, fmt.Errorf("level %d is not positive", n))
		}
		if i > 0 && n <= levels[i-1] {
			result = multierror.Append(result, fmt.Errorf("levels must be strictly ascending: %d after %d", n, levels[i-1]))
		}
	}
	if maxThreads > 0 && levels[len(levels)-1] > maxThreads {
		result = multierror.Append(result, fmt.Errorf("level %d exceeds the %d available shard connections", levels[len(levels)-1], maxThreads))
	}
	return result.ErrorOrNil()
}
