package queue

import (
	"container/heap"
	"context"
	"sync"
)

// Priority orders envelopes in a [Dispatch] queue. Lower numeric values are
// served first. The gaps leave room for intermediate levels without
// renumbering.
type Priority int

const (
	PriorityEmergency Priority = 1
	PriorityHigh      Priority = 10
	PriorityMedium    Priority = 20
	PriorityStandard  Priority = 30
	PriorityLow       Priority = 40
)

// String returns the human-readable name of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityEmergency:
		return "emergency"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityStandard:
		return "standard"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Envelope pairs a payload with its dispatch ordering key. Seq is assigned
// by the queue on enqueue and provides FIFO ordering within one priority
// level.
type Envelope[T any] struct {
	Priority Priority
	Payload  T
	Seq      uint64
}

// entryHeap implements container/heap.Interface as a min-heap ordered by
// (priority, seq). Equal priorities dequeue in insertion order — the
// tie-break is part of the contract, not an implementation accident.
type entryHeap[T any] []Envelope[T]

func (h entryHeap[T]) Len() int { return len(h) }

func (h entryHeap[T]) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].Seq < h[j].Seq
}

func (h entryHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by container/heap; callers must not
// invoke this directly.
func (h *entryHeap[T]) Push(x any) {
	*h = append(*h, x.(Envelope[T]))
}

// Pop removes and returns the last element. Called by container/heap;
// callers must not invoke this directly.
func (h *entryHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Dispatch is a multi-producer, single-consumer priority queue with a
// strict total order: ascending priority value first, then ascending
// enqueue sequence. It is unbounded; the draining consumer is expected to
// keep up because delivery downstream is fire-and-forget.
type Dispatch[T any] struct {
	mu      sync.Mutex
	entries entryHeap[T]
	nextSeq uint64
	closed  bool

	notify chan struct{} // capacity 1; nudges a blocked Dequeue
	done   chan struct{}
	once   sync.Once
}

// NewDispatch creates an empty dispatch queue.
func NewDispatch[T any]() *Dispatch[T] {
	return &Dispatch[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue inserts payload with the given priority. Safe for concurrent use
// by multiple producers. Returns ErrShutdown after Shutdown.
func (d *Dispatch[T]) Enqueue(p Priority, payload T) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrShutdown
	}
	heap.Push(&d.entries, Envelope[T]{Priority: p, Payload: payload, Seq: d.nextSeq})
	d.nextSeq++
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue removes and returns the highest-priority envelope, blocking until
// one is available, the context is cancelled, or the queue is shut down.
func (d *Dispatch[T]) Dequeue(ctx context.Context) (Envelope[T], error) {
	for {
		d.mu.Lock()
		if d.entries.Len() > 0 {
			e := heap.Pop(&d.entries).(Envelope[T])
			d.mu.Unlock()
			return e, nil
		}
		closed := d.closed
		d.mu.Unlock()

		if closed {
			return Envelope[T]{}, ErrShutdown
		}

		select {
		case <-d.notify:
		case <-d.done:
			return Envelope[T]{}, ErrShutdown
		case <-ctx.Done():
			return Envelope[T]{}, ctx.Err()
		}
	}
}

// Len returns the number of pending envelopes.
func (d *Dispatch[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries.Len()
}

// Shutdown transitions the queue to its terminal state, waking any blocked
// Dequeue. Safe to call multiple times.
func (d *Dispatch[T]) Shutdown() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.done)
	})
}
