package report

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/TreeWu/mongo-perf/benchmark"
)

// JSONLines prints one JSON object per result, flushing after each so a
// consumer sees progress while the run is going.
type JSONLines struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
}

func NewJSONLines(w io.Writer) *JSONLines {
	bw := bufio.NewWriter(w)
	return &JSONLines{w: bw, enc: json.NewEncoder(bw)}
}

func (j *JSONLines) Write(ctx context.Context, r benchmark.Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(r); err != nil {
		return err
	}
	return j.w.Flush()
}

func (j *JSONLines) Close(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.w.Flush()
}

// ReadJSONLines parses results written by JSONLines. Blank lines are skipped.
func ReadJSONLines(r io.Reader) ([]benchmark.Result, error) {
	var results []benchmark.Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(bytes.TrimSpace(text)) == 0 {
			continue
		}
		var res benchmark.Result
		if err := json.Unmarshal(text, &res); err != nil {
			return results, fmt.Errorf("line %d: %w", line, err)
		}
		results = append(results, res)
	}
	return results, scanner.Err()
}

