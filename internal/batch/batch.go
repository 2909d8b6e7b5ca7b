// Package batch implements the bounded-parallelism batch executor:
// spec.md §4.11. N requests run with at most P in flight; results land
// at their original index regardless of completion order, avoiding the
// size-mismatch fragility spec.md §9 flags in a naive
// "responses.size() == futures.size()" bookkeeping scheme by indexing
// explicitly instead of appending as futures resolve.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/riverglass/httpcore/internal/model"
)

// Doer is the subset of Executor the batch runner needs.
type Doer interface {
	Do(ctx context.Context, req *model.Request) (*model.Response, error)
}

// Result pairs one request's outcome with any error Do returned for
// it (a URL parse failure, typically — transport failures already
// surface as a Response with StatusCode 0, not a Go error).
type Result struct {
	Response *model.Response
	Err      error
}

// Run executes reqs against doer with at most parallelism requests in
// flight at once, returning one Result per request in input order.
func Run(ctx context.Context, doer Doer, reqs []*model.Request, parallelism int) []Result {
	if parallelism <= 0 {
		parallelism = 1
	}

	results := make([]Result, len(reqs))
	var g errgroup.Group
	g.SetLimit(parallelism)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			resp, err := doer.Do(ctx, req)
			results[i] = Result{Response: resp, Err: err}
			return nil
		})
	}
	g.Wait()

	return results
}
