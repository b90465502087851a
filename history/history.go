// Package history compares benchmark results across revisions.
package history

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/TreeWu/mongo-perf/benchmark"
)

// Entry is one revision's results.
type Entry struct {
	Revision string `json:"revision"`
	Order    int    `json:"order"`
	Data     struct {
		Results []benchmark.Result `json:"results"`
	} `json:"data"`
}

// History holds entries in ascending order.
type History []Entry

// Point is a test's best throughput at one revision.
type Point struct {
	Revision  string  `json:"revision"`
	Order     int     `json:"order"`
	OpsPerSec float64 `json:"max"`
}

// Finding is a throughput drop between two consecutive points of a test.
type Finding struct {
	Test     string
	Previous Point
	Current  Point
}

func (f Finding) String() string {
	prev := f.Previous.Revision
	if len(prev) > 5 {
		prev = prev[:5]
	}
	return fmt.Sprintf("%s: drop from %.2f (commit %s) to %.2f", f.Test, f.Previous.OpsPerSec, prev, f.Current.OpsPerSec)
}

// Load reads a JSON array of entries.
func Load(r io.Reader) (History, error) {
	var h History
	if err := json.NewDecoder(r).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	h.sort()
	return h, nil
}

// New orders entries for use.
func New(entries ...Entry) History {
	h := append(History(nil), entries...)
	h.sort()
	return h
}

func (h History) sort() {
	sort.SliceStable(h, func(i, j int) bool { return h[i].Order < h[j].Order })
}

// TestNames lists every test that appears in any entry, sorted.
func (h History) TestNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, e := range h {
		for _, r := range e.Data.Results {
			if !seen[r.Name] {
				seen[r.Name] = true
				names = append(names, r.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Series returns the test's best throughput at every revision that has it.
func (h History) Series(name string) []Point {
	var points []Point
	for _, e := range h {
		for _, r := range e.Data.Results {
			if r.Name == name {
				points = append(points, Point{Revision: e.Revision, Order: e.Order, OpsPerSec: r.MaxOpsPerSec()})
				break
			}
		}
	}
	return points
}

// Check compares every test at rev with the closest earlier revision that ran
// it. A drop of at least threshold times the earlier maximum is a finding.
// Tests missing at rev or without an earlier point are skipped.
func (h History) Check(rev string, threshold float64) []Finding {
	var findings []Finding
	for _, name := range h.TestNames() {
		series := h.Series(name)
		for i, p := range series {
			if p.Revision != rev {
				continue
			}
			if i == 0 {
				break
			}
			prev := series[i-1]
			if prev.OpsPerSec-p.OpsPerSec >= threshold*prev.OpsPerSec {
				findings = append(findings, Finding{Test: name, Previous: prev, Current: p})
			}
			break
		}
	}
	return findings
}
