package scanner

import (
	"context"
	"sync"
	"sync/atomic"
)

// Result holds the outcome of processing a single item.
type Result[T, R any] struct {
	Item  T
	Value R
	Err   error
}

// ProcessFunc processes a single item.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// ProcessConcurrently fans out item processing across N workers.
// The processed pointer, when non-nil, is atomically incremented after each
// item completes (success or failure), enabling external progress reporting.
// Results are returned in input order. Items not started before ctx is
// cancelled carry ctx.Err().
func ProcessConcurrently[T, R any](
	ctx context.Context,
	items []T,
	fn ProcessFunc[T, R],
	workers int,
	processed *int64,
) []Result[T, R] {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	out := make([]Result[T, R], len(items))
	jobs := make(chan int, len(items))

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				item := items[i]
				// Check for cancellation before processing
				if err := ctx.Err(); err != nil {
					out[i] = Result[T, R]{Item: item, Err: err}
				} else {
					v, err := fn(ctx, item)
					out[i] = Result[T, R]{Item: item, Value: v, Err: err}
				}
				if processed != nil {
					atomic.AddInt64(processed, 1)
				}
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	return out
}
