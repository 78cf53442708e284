// Package queue provides the two queueing primitives used at every stage
// boundary of the ingest pipeline:
//
//   - [SlidingWindow] — a bounded FIFO that evicts its oldest element when
//     full instead of blocking the producer. It is the pipeline's
//     backpressure valve: hardware callbacks must never stall, so overload
//     trades data loss for liveness.
//   - [Dispatch] — a multi-producer, single-consumer total-order queue that
//     serves the lowest numeric priority first and preserves insertion
//     order among equals.
//
// Both types are safe for concurrent use and share the same terminal
// shutdown semantics: after Shutdown, every operation returns
// [ErrShutdown] rather than blocking forever.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrShutdown is returned by every queue operation after Shutdown has been
// called. It signals clean termination, not a fault.
var ErrShutdown = errors.New("queue: shut down")

// ErrEmpty is returned by non-blocking reads on an empty queue.
var ErrEmpty = errors.New("queue: empty")

// SlidingWindow is a bounded FIFO container with drop-oldest-on-full
// semantics. Put never blocks on a full queue; instead the head element is
// evicted to make room. Eviction and insertion happen atomically with
// respect to other producers.
type SlidingWindow[T any] struct {
	mu    sync.Mutex // serialises producers; the evict+insert pair must not interleave
	items chan T
	done  chan struct{}
	once  sync.Once

	drops atomic.Uint64
}

// NewSlidingWindow creates a queue holding at most capacity elements.
// Capacity must be positive.
func NewSlidingWindow[T any](capacity int) (*SlidingWindow[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("queue: capacity must be positive, got %d", capacity)
	}
	return &SlidingWindow[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}, nil
}

// Put inserts item at the tail, evicting the head first when the queue is
// full. It returns ErrShutdown after Shutdown and nil otherwise.
func (q *SlidingWindow[T]) Put(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-q.done:
		return ErrShutdown
	default:
	}

	if len(q.items) == cap(q.items) {
		// Only producers add elements and all of them hold q.mu, so at
		// most one eviction is ever needed to free a slot.
		select {
		case <-q.items:
			q.drops.Add(1)
		default:
		}
	}
	q.items <- item
	return nil
}

// Get removes and returns the head element, blocking until an element is
// available, the context is cancelled, or the queue is shut down.
func (q *SlidingWindow[T]) Get(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-q.done:
		return zero, ErrShutdown
	default:
	}
	select {
	case item := <-q.items:
		return item, nil
	case <-q.done:
		return zero, ErrShutdown
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TryGet removes and returns the head element without blocking. It returns
// ErrEmpty when no element is available.
func (q *SlidingWindow[T]) TryGet() (T, error) {
	var zero T
	select {
	case <-q.done:
		return zero, ErrShutdown
	default:
	}
	select {
	case item := <-q.items:
		return item, nil
	default:
		return zero, ErrEmpty
	}
}

// Shutdown transitions the queue to its terminal state. All blocked and
// subsequent Put/Get calls return ErrShutdown. Safe to call multiple times.
func (q *SlidingWindow[T]) Shutdown() {
	q.once.Do(func() { close(q.done) })
}

// Len returns the number of elements currently queued.
func (q *SlidingWindow[T]) Len() int { return len(q.items) }

// Cap returns the configured capacity.
func (q *SlidingWindow[T]) Cap() int { return cap(q.items) }

// Drops returns the number of elements evicted by Put so far.
func (q *SlidingWindow[T]) Drops() uint64 { return q.drops.Load() }
