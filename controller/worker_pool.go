package controller

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// WorkerPool fans a store's subjects out across a fixed number of
// goroutines, each processing one subject at a time until the input is
// exhausted — the Go counterpart of run_groupby_query2's
// "#pragma omp parallel for schedule(static)" per-store loop.
type WorkerPool struct {
	workerCount int
}

// NewWorkerPool returns a WorkerPool with workerCount goroutines, or
// runtime.NumCPU() if workerCount <= 0.
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &WorkerPool{workerCount: workerCount}
}

// ExecuteParallel runs operation(ctx, inputs[i]) for every i, across
// wp.workerCount goroutines, and returns results in input order. It
// returns the first error encountered (wrapped with the failing input's
// index), after every in-flight operation has finished — it does not
// cancel siblings early, since a groupby shard's state-map writes for
// subjects it already completed must still be merged.
func (wp *WorkerPool) ExecuteParallel(
	ctx context.Context,
	inputs []interface{},
	operation func(context.Context, interface{}) (interface{}, error),
) ([]interface{}, error) {
	results := make([]interface{}, len(inputs))
	errs := make([]error, len(inputs))

	jobs := make(chan int, len(inputs))
	for i := range inputs {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < wp.workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := operation(ctx, inputs[i])
				results[i] = res
				errs[i] = err
			}
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return results, fmt.Errorf("shard execution failed at index %d: %w", i, err)
		}
	}
	return results, nil
}

// ExecuteParallelBatched is like ExecuteParallel but groups inputs into
// batches of batchSize (100 if batchSize <= 0) before handing each batch
// to a worker, amortising per-subject scheduling overhead across a small
// run of subjects the way run_groupby_query2's static OpenMP schedule
// does implicitly via contiguous chunks.
func (wp *WorkerPool) ExecuteParallelBatched(
	ctx context.Context,
	inputs []interface{},
	batchSize int,
	operation func(context.Context, []interface{}) ([]interface{}, error),
) ([]interface{}, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	var batches [][]interface{}
	for i := 0; i < len(inputs); i += batchSize {
		end := i + batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		batches = append(batches, inputs[i:end])
	}

	batchInputs := make([]interface{}, len(batches))
	for i, b := range batches {
		batchInputs[i] = b
	}

	batchResults, err := wp.ExecuteParallel(ctx, batchInputs, func(ctx context.Context, b interface{}) (interface{}, error) {
		return operation(ctx, b.([]interface{}))
	})

	var out []interface{}
	for _, br := range batchResults {
		if br == nil {
			continue
		}
		out = append(out, br.([]interface{})...)
	}
	return out, err
}
