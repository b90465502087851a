package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TreeWu/mongo-perf/benchmark"
)

// Text prints a human readable table per result and a throughput ranking on
// Close.
type Text struct {
	mu      sync.Mutex
	w       io.Writer
	results []benchmark.Result
	header  bool
}

func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

func (t *Text) Write(ctx context.Context, r benchmark.Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var bs bytes.Buffer
	if !t.header {
		bs.WriteString(strings.Repeat("=", 20))
		bs.WriteString("性能测试结果汇总")
		bs.WriteString(strings.Repeat("=", 20))
		bs.WriteString(fmt.Sprintf("\n%-45s %-8s %-15s %-18s %-8s\n",
			"测试", "线程数", "耗时", "吞吐量(次/秒)", "加速比"))
		bs.WriteString(strings.Repeat("=", 50))
		bs.WriteString("\n")
		t.header = true
	}
	for _, l := range r.Levels {
		bs.WriteString(fmt.Sprintf("%-45s %-8d %-15v %-18.2f %-8.2f\n",
			r.Name, l.Threads, time.Duration(l.Time*float64(time.Second)), l.OpsPerSec, l.Speedup))
	}
	t.results = append(t.results, r)
	_, err := t.w.Write(bs.Bytes())
	return err
}

func (t *Text) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.results) == 0 {
		return nil
	}

	ranked := append([]benchmark.Result(nil), t.results...)
	// 按吞吐量排序
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].MaxOpsPerSec() > ranked[j].MaxOpsPerSec()
	})

	var bs bytes.Buffer
	bs.WriteString(strings.Repeat("=", 50))
	bs.WriteString("\n吞吐量排名:\n")
	for i, r := range ranked {
		bs.WriteString(fmt.Sprintf("%d. %s: %.2f\n", i+1, r.Name, r.MaxOpsPerSec()))
	}
	bs.WriteString("(越高越好)\n")
	_, err := t.w.Write(bs.Bytes())
	return err
}
