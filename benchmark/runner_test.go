package benchmark

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunConcurrent_ThreadFidelity(t *testing.T) {
	w := &fakeWorkload{name: "fidelity"}
	elapsed, err := RunConcurrent(context.Background(), w, 5, newConn(10))
	require.NoError(t, err)
	assert.Greater(t, elapsed, 0.0)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, w.callsFor(5))
	assert.Len(t, w.calls, 5)
}

func TestRunConcurrent_InvalidCount(t *testing.T) {
	w := &fakeWorkload{name: "zero"}
	_, err := RunConcurrent(context.Background(), w, 0, newConn(10))
	assert.Error(t, err)
	assert.Empty(t, w.calls)
}

func TestRunConcurrent_JoinsAllBeforeFailing(t *testing.T) {
	var done atomic.Int32
	w := &fakeWorkload{name: "slow", run: func(thread, nthreads int) error {
		if thread == 1 {
			return errors.New("boom")
		}
		time.Sleep(20 * time.Millisecond)
		done.Add(1)
		return nil
	}}
	elapsed, err := RunConcurrent(context.Background(), w, 4, newConn(10))
	var we *WorkerError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, 1, we.Thread)
	assert.Zero(t, elapsed)
	assert.EqualValues(t, 3, done.Load())
}

func TestRunConcurrent_RecoversPanics(t *testing.T) {
	w := &fakeWorkload{name: "panics", run: func(thread, nthreads int) error {
		if thread == 2 {
			panic("worker exploded")
		}
		return nil
	}}
	_, err := RunConcurrent(context.Background(), w, 3, newConn(10))
	var we *WorkerError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, 2, we.Thread)
	assert.Contains(t, err.Error(), "worker exploded")
}

func TestRunConcurrent_MeasuresSlowestWorker(t *testing.T) {
	w := &fakeWorkload{name: "sleepy", run: func(thread, nthreads int) error {
		if thread == nthreads-1 {
			time.Sleep(30 * time.Millisecond)
		}
		return nil
	}}
	elapsed, err := RunConcurrent(context.Background(), w, 3, newConn(10))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 0.03)
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 1e-6, seconds(0))
	assert.Equal(t, 1e-6, seconds(999*time.Nanosecond))
	assert.Equal(t, 1.5, seconds(1500*time.Millisecond))
}
