// Package worker runs a bounded set of goroutines over a feed of items.
package worker

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("worker: pool closed")

type Handler[T any] func(ctx context.Context, workerID int, item T)

type Pool[T any] struct {
	items chan T
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Start launches n workers. The buffer holds up to 2n pending items.
func Start[T any](ctx context.Context, n int, h Handler[T]) *Pool[T] {
	n = Clamp(n)
	p := &Pool[T]{items: make(chan T, n*2)}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go func(workerID int) {
			defer p.wg.Done()
			for item := range p.items {
				h(ctx, workerID, item)
			}
		}(i)
	}
	return p
}

// Submit blocks while the buffer is full.
func (p *Pool[T]) Submit(ctx context.Context, item T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and waits for in-flight items to finish.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.items)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Clamp bounds a configured concurrency to [1, 50]; 0 means 2.
func Clamp(n int) int {
	switch {
	case n == 0:
		return 2
	case n < 1:
		return 1
	case n > 50:
		return 50
	}
	return n
}
