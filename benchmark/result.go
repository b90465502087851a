package benchmark

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
)

// LevelResult is the measurement at one thread count.
type LevelResult struct {
	Threads   int     `json:"-" bson:"-"`
	Time      float64 `json:"time" bson:"time"`
	OpsPerSec float64 `json:"ops_per_sec" bson:"ops_per_sec"`
	Speedup   float64 `json:"speedup" bson:"speedup"`
}

// Result holds one workload's sweep in ascending thread order.
//
// It encodes as {"name": ..., "results": {"1": {...}, "2": {...}}} in both
// JSON and BSON, with the level keys in ascending numeric order.
type Result struct {
	Name   string
	Levels []LevelResult
}

// NewResult derives throughput and speedup from the elapsed seconds measured
// at each level. The first level is the baseline.
func NewResult(name string, iterations int, levels []int, elapsed []float64) Result {
	r := Result{Name: name, Levels: make([]LevelResult, len(levels))}
	for i, n := range levels {
		r.Levels[i] = LevelResult{
			Threads:   n,
			Time:      elapsed[i],
			OpsPerSec: float64(iterations) / elapsed[i],
			Speedup:   elapsed[0] / elapsed[i],
		}
	}
	return r
}

// Level looks up the measurement for a thread count.
func (r Result) Level(threads int) (LevelResult, bool) {
	for _, l := range r.Levels {
		if l.Threads == threads {
			return l, true
		}
	}
	return LevelResult{}, false
}

// Threads lists the measured thread counts.
func (r Result) Threads() []int {
	out := make([]int, len(r.Levels))
	for i, l := range r.Levels {
		out[i] = l.Threads
	}
	return out
}

// MaxOpsPerSec is the best throughput over all levels.
func (r Result) MaxOpsPerSec() float64 {
	best := 0.0
	for _, l := range r.Levels {
		if l.OpsPerSec > best {
			best = l.OpsPerSec
		}
	}
	return best
}

func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	name, err := json.Marshal(r.Name)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`{"name":`)
	buf.Write(name)
	buf.WriteString(`,"results":{`)
	for i, l := range r.Levels {
		if i > 0 {
			buf.WriteByte(',')
		}
		body, err := json.Marshal(l)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, `"%d":`, l.Threads)
		buf.Write(body)
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

type wireResult struct {
	Name    string                 `json:"name" bson:"name"`
	Results map[string]LevelResult `json:"results" bson:"results"`
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return r.fromWire(w)
}

func (r Result) MarshalBSON() ([]byte, error) {
	levels := make(bson.D, 0, len(r.Levels))
	for _, l := range r.Levels {
		levels = append(levels, bson.E{Key: strconv.Itoa(l.Threads), Value: l})
	}
	return bson.Marshal(bson.D{{Key: "name", Value: r.Name}, {Key: "results", Value: levels}})
}

func (r *Result) UnmarshalBSON(data []byte) error {
	var w wireResult
	if err := bson.Unmarshal(data, &w); err != nil {
		return err
	}
	return r.fromWire(w)
}

func (r *Result) fromWire(w wireResult) error {
	r.Name = w.Name
	r.Levels = r.Levels[:0]
	for key, l := range w.Results {
		n, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("result %q: bad thread count %q", w.Name, key)
		}
		l.Threads = n
		r.Levels = append(r.Levels, l)
	}
	sort.Slice(r.Levels, func(i, j int) bool { return r.Levels[i].Threads < r.Levels[j].Threads })
	return nil
}
