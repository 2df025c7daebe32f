package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunProcessesEveryIndexOnce(t *testing.T) {
	const n = 100
	var mu sync.Mutex
	seen := make(map[int]int)

	Run(context.Background(), 7, n, func(_ context.Context, i int) {
		mu.Lock()
		seen[i]++
		mu.Unlock()
	})

	require.Len(t, seen, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, 1, seen[i], "index %d", i)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	const workers = 3
	var inFlight, peak int64

	Run(context.Background(), workers, 40, func(_ context.Context, _ int) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
	})

	assert.LessOrEqual(t, peak, int64(workers))
	assert.Greater(t, peak, int64(0))
}

func TestRunWithMoreWorkersThanItems(t *testing.T) {
	var count int64
	Run(context.Background(), 50, 5, func(_ context.Context, _ int) {
		atomic.AddInt64(&count, 1)
	})
	assert.Equal(t, int64(5), count)
}

func TestRunCancelledContextStopsClaiming(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var count int64
	Run(ctx, 2, 100, func(_ context.Context, _ int) {
		atomic.AddInt64(&count, 1)
	})
	assert.Equal(t, int64(0), count)
}

func TestRunZeroItems(t *testing.T) {
	Run(context.Background(), 3, 0, func(_ context.Context, _ int) {
		t.Fatal("fn must not be called")
	})
}
