package pool

import (
	"context"
	"sync"
	"sync/atomic"
)

// Run processes n items with at most workers goroutines. Each worker claims
// the next unclaimed index until the queue is exhausted, so no more than
// workers items are ever in flight at once regardless of n. Run returns once
// every claimed item has finished; a cancelled context stops workers from
// claiming further indexes but does not interrupt items already running.
func Run(ctx context.Context, workers, n int, fn func(ctx context.Context, i int)) {
	if n <= 0 {
		return
	}
	if workers <= 0 || workers > n {
		workers = n
	}

	var next int64 = -1
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				i := int(atomic.AddInt64(&next, 1))
				if i >= n {
					return
				}
				fn(ctx, i)
			}
		}()
	}
	wg.Wait()
}
