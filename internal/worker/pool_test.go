package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPool_RunsEveryItem(t *testing.T) {
	defer goleak.VerifyNone(t)

	var (
		mu   sync.Mutex
		seen = map[int]bool{}
	)
	p := Start(context.Background(), 3, func(ctx context.Context, workerID int, item int) {
		mu.Lock()
		seen[item] = true
		mu.Unlock()
	})
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(context.Background(), i))
	}
	p.Close()

	require.Len(t, seen, 20)
	require.ErrorIs(t, p.Submit(context.Background(), 99), ErrClosed)
	p.Close()
}

func TestPool_BoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	var inFlight, peak int32
	p := Start(context.Background(), 2, func(ctx context.Context, workerID int, item int) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	})
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(context.Background(), i))
	}
	p.Close()

	require.LessOrEqual(t, peak, int32(2))
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	block := make(chan struct{})
	p := Start(context.Background(), 1, func(ctx context.Context, workerID int, item int) {
		<-block
	})

	// one running plus a buffer of two
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(context.Background(), i))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Submit(ctx, 3), context.DeadlineExceeded)

	close(block)
	p.Close()
}

func TestClamp(t *testing.T) {
	require.Equal(t, 2, Clamp(0))
	require.Equal(t, 1, Clamp(-4))
	require.Equal(t, 7, Clamp(7))
	require.Equal(t, 50, Clamp(500))
}
