package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const DefaultAcquireTimeout = 30 * time.Second

var (
	ErrPoolClosed     = errors.New("pool is closed")
	ErrAcquireTimeout = errors.New("timeout waiting for available session")
)

// Pool hands out a fixed set of items that must not be used by more than
// one goroutine at a time. A size of one serializes all callers.
type Pool[T any] struct {
	items   chan T
	size    int
	timeout time.Duration
	destroy func(T)

	mu      sync.Mutex
	closed  bool
	metrics poolMetrics
}

type poolMetrics struct {
	mu              sync.Mutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

type PoolStats struct {
	Size            int     `json:"size"`
	Available       int     `json:"available"`
	InUse           int     `json:"in_use"`
	TotalAcquired   int64   `json:"total_acquired"`
	TotalReleased   int64   `json:"total_released"`
	AcquireFailures int64   `json:"acquire_failures"`
	WaitSeconds     float64 `json:"wait_seconds"`
}

func NewPool[T any](size int, timeout time.Duration, factory func() (T, error), destroy func(T)) (*Pool[T], error) {
	if size <= 0 {
		size = 1
	}
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}

	p := &Pool[T]{
		items:   make(chan T, size),
		size:    size,
		timeout: timeout,
		destroy: destroy,
	}

	for i := 0; i < size; i++ {
		item, err := factory()
		if err != nil {
			p.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		p.items <- item
	}

	return p, nil
}

func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case item, ok := <-p.items:
		if !ok {
			return zero, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return item, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return zero, ErrAcquireTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (p *Pool[T]) Release(item T) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		if p.destroy != nil {
			p.destroy(item)
		}
		return
	}
	p.items <- item
}

// Destroy closes the pool and destroys idle items. Items still checked
// out are destroyed when released.
func (p *Pool[T]) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.items)

	for item := range p.items {
		if p.destroy != nil {
			p.destroy(item)
		}
	}
}

func (p *Pool[T]) Stats() PoolStats {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()
	return PoolStats{
		Size:            p.size,
		Available:       len(p.items),
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		WaitSeconds:     p.metrics.waitTime.Seconds(),
	}
}
