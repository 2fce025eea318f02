// Package fanout runs independent backend calls for a single request in
// parallel, for example the per-key deletes of a multi-object delete. Results
// come back in input order so the caller can build its response document
// without re-sorting.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome for one item. Err is set on failure; Value is the
// zero value in that case.
type Result[R any] struct {
	Value R
	Err   error
}

// Run calls fn for every item with at most maxWorkers calls in flight.
//
// Items that have not started when ctx is done are not passed to fn; their
// Result carries ctx.Err(). Calls already running are left to observe ctx
// themselves. Failures never stop the other items. Run returns once every
// item has a Result; an empty input yields an empty, non-nil slice.
func Run[T, R any](ctx context.Context, maxWorkers int, items []T, fn func(context.Context, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(max(maxWorkers, 1))

	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			v, err := fn(ctx, item)
			results[i] = Result[R]{Value: v, Err: err}
			return nil
		})
	}

	_ = g.Wait() // per-item errors live in results
	return results
}

// Errors returns the failed results' errors keyed by input index.
func Errors[R any](results []Result[R]) map[int]error {
	var out map[int]error
	for i, r := range results {
		if r.Err == nil {
			continue
		}
		if out == nil {
			out = make(map[int]error)
		}
		out[i] = r.Err
	}
	return out
}
