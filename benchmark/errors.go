package benchmark

import "fmt"

// ConfigError reports a suite that cannot run. Err usually aggregates every
// problem found.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid benchmark configuration: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FatalError aborts a run. It names the workload and the level in progress.
type FatalError struct {
	Workload string
	Threads  int
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s at %d threads: %v", e.Workload, e.Threads, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// WorkerError is the failure of a single worker.
type WorkerError struct {
	Thread int
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.Thread, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }
