// Package pool runs independent jobs on a bounded number of goroutines.
//
// The pool knows nothing about what a job does: it takes a pure function
// from job to result and a concurrency limit, runs every job exactly once and
// returns the results in submission order. A job cannot fail its siblings;
// failures belong in the result value.
package pool

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Workers returns the number of workers used for n jobs with the given
// limit: min(limit, n), and at least 1 when there is work.
func Workers(limit, n int) int {
	if n <= 0 {
		return 0
	}
	if limit < 1 {
		limit = 1
	}
	return min(limit, n)
}

// PanicError reports a job that panicked. It is the only error Run returns.
type PanicError struct {
	Index int
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("pool: job %d panicked: %v", e.Index, e.Value)
}

// Run calls fn once per job on Workers(limit, len(jobs)) goroutines and waits
// for all of them. results[i] belongs to jobs[i]. There is no timeout: a job
// that never returns blocks Run.
//
// If a job panics, the remaining jobs still run and Run returns the first
// panic as a *PanicError; that job's result is the zero value.
func Run[J, R any](ctx context.Context, jobs []J, limit int, fn func(context.Context, J) R) ([]R, error) {
	results := make([]R, len(jobs))
	if len(jobs) == 0 {
		return results, nil
	}

	var g errgroup.Group
	g.SetLimit(Workers(limit, len(jobs)))
	for i, job := range jobs {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Index: i, Value: r, Stack: debug.Stack()}
				}
			}()
			results[i] = fn(ctx, job)
			return nil
		})
	}
	return results, g.Wait()
}
