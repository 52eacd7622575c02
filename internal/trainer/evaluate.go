package trainer

import (
	"context"
	"sync"

	"github.com/janpfeifer/seqlabel/internal/decoder"
	"github.com/janpfeifer/seqlabel/internal/seqmodel"
	"golang.org/x/sync/errgroup"
)

// Evaluate decodes every sequence in data concurrently (read-only, post-
// average per spec §5's inference-time relaxation) and returns the
// aggregate Stats. parallelism <= 0 defaults to 1 (sequential).
//
// Weight vectors must not be mutated by any other goroutine for the
// duration of this call; Train never runs concurrently with
// Evaluate by construction, since Train owns the vectors exclusively while
// it runs.
func Evaluate(ctx context.Context, tr *Trainer, data []*seqmodel.Sequence, parallelism int) (Stats, error) {
	if parallelism <= 0 {
		parallelism = 1
	}
	jobs := make(chan int)
	var mu sync.Mutex
	total := Stats{}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < parallelism; w++ {
		g.Go(func() error {
			d := decoder.New(tr.NLabels, tr.Emission, tr.Transition)
			for idx := range jobs {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				seq := data[idx]
				d.Decode(seq)
				local := Stats{}
				accumulate(&local, seq)
				mu.Lock()
				total.Sequences++
				total.Tokens += local.Tokens
				total.Correct += local.Correct
				total.SkippedTokens += local.SkippedTokens
				mu.Unlock()
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for i := range data {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case jobs <- i:
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}
