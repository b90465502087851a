package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/TreeWu/mongo-perf/benchmark"
)

// CSV lays results out as one row per workload with time, ops_per_sec and
// speedup columns for every level. Rows are buffered and written on Close.
type CSV struct {
	mu      sync.Mutex
	w       io.Writer
	levels  []int
	results []benchmark.Result
}

// NewCSV fixes the column set. A nil levels takes them from the first result.
func NewCSV(w io.Writer, levels []int) *CSV {
	return &CSV{w: w, levels: append([]int(nil), levels...)}
}

func (c *CSV) Write(ctx context.Context, r benchmark.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.levels) == 0 {
		c.levels = r.Threads()
	}
	c.results = append(c.results, r)
	return nil
}

func (c *CSV) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteCSV(c.w, c.levels, c.results)
}

// CSVHeader is benchmark-name followed by three columns per level.
func CSVHeader(levels []int) []string {
	header := []string{"benchmark-name"}
	for _, n := range levels {
		for _, field := range []string{"time", "ops_per_sec", "speedup"} {
			header = append(header, fmt.Sprintf("%d-threads-%s", n, field))
		}
	}
	return header
}

// WriteCSV writes the header and one row per result. Levels a result did not
// measure are left empty.
func WriteCSV(w io.Writer, levels []int, results []benchmark.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader(levels)); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{r.Name}
		for _, n := range levels {
			l, ok := r.Level(n)
			if !ok {
				row = append(row, "", "", "")
				continue
			}
			row = append(row, formatFloat(l.Time), formatFloat(l.OpsPerSec), formatFloat(l.Speedup))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
