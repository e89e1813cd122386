// Package fanout runs a variable number of independent sub-jobs, such as
// per-page OCR calls, against an external provider with a bounded
// concurrency ceiling.
package fanout

import (
	"context"
	"sync"
)

// DefaultConcurrency is the fallback ceiling used when a caller passes a
// non-positive limit. It bounds provider load regardless of input size.
const DefaultConcurrency = 16

// Result holds the outcome of one worker invocation. A failed item keeps
// its slot with OK=false so callers can filter while preserving order.
type Result[T any] struct {
	Value T
	Err   error
	OK    bool
}

// Worker processes a single item. Invocations are independent: one item's
// failure never cancels its siblings.
type Worker[I, T any] func(ctx context.Context, index int, item I) (T, error)

// RunBounded executes worker once per item with at most limit invocations
// in flight at a time. The returned slice has exactly len(items) entries
// in input order regardless of completion order.
//
// The context is passed through to workers but in-flight invocations are
// not interrupted; each runs to its own completion or failure. Items not
// yet started when ctx is cancelled are recorded as failed with ctx.Err().
func RunBounded[I, T any](ctx context.Context, items []I, limit int, worker Worker[I, T]) []Result[T] {
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	results := make([]Result[T], len(items))
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, item := range items {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = Result[T]{Err: ctx.Err()}
			continue
		}

		wg.Add(1)
		go func(i int, item I) {
			defer wg.Done()
			defer func() { <-sem }()

			value, err := worker(ctx, i, item)
			if err != nil {
				results[i] = Result[T]{Err: err}
				return
			}
			results[i] = Result[T]{Value: value, OK: true}
		}(i, item)
	}

	wg.Wait()
	return results
}

// Values extracts the successful results in order, skipping failed slots.
func Values[T any](results []Result[T]) []T {
	values := make([]T, 0, len(results))
	for _, r := range results {
		if r.OK {
			values = append(values, r.Value)
		}
	}
	return values
}

// FirstError returns the first failure in input order, or nil when every
// item succeeded.
func FirstError[T any](results []Result[T]) error {
	for _, r := range results {
		if !r.OK && r.Err != nil {
			return r.Err
		}
	}
	return nil
}
