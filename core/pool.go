package core

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/eureka-network/proof-experiments/ledger"
	"github.com/eureka-network/proof-experiments/trace"
)

// maxConcurrentProofs caps how many proving jobs a batch runs at once.
// Proving is CPU heavy so running the whole batch in parallel is
// counterproductive.
const maxConcurrentProofs = 4

// SubmitBatch submits several traces concurrently. Every trace is attempted;
// a failing one does not stop the others. Results align with the input slice
// and the returned error aggregates all per-trace failures.
func (d *Daemon) SubmitBatch(ctx context.Context, traces []*trace.ExecutionTrace) ([][]*ledger.Entry, error) {
	out := make([][]*ledger.Entry, len(traces))

	var mu sync.Mutex
	var errs error
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProofs)
	for i, tr := range traces {
		i, tr := i, tr
		g.Go(func() error {
			entries, err := d.Submit(gctx, tr)
			mu.Lock()
			out[i] = entries
			if err != nil {
				errs = multierror.Append(errs, err)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out, errs
}
