package tensor

import (
	"runtime"
	"sync"
)

// Runtime carries the execution settings for the heavy kernels. Callers
// construct one and thread it through explicitly; there is no package-level
// pool. A nil Runtime is valid and runs everything on the calling goroutine.
type Runtime struct {
	workers int
}

// NewRuntime returns a runtime that fans work out across the given number of
// workers. A count below 1 selects GOMAXPROCS.
func NewRuntime(workers int) *Runtime {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runtime{workers: workers}
}

// Workers returns the configured worker count.
func (r *Runtime) Workers() int {
	if r == nil {
		return 1
	}
	return r.workers
}

// Parallel splits the half-open range [0, n) into contiguous chunks and runs
// fn on each chunk, blocking until all chunks complete. fn must be safe to
// call concurrently for disjoint ranges.
func (r *Runtime) Parallel(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := r.Workers()
	if workers > n {
		workers = n
	}
	if workers == 1 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}
