package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewSlidingWindowRejectsBadCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, -100} {
		if _, err := NewSlidingWindow[int](capacity); err == nil {
			t.Errorf("capacity %d: expected error, got nil", capacity)
		}
	}
}

func TestSlidingWindowKeepsLastCapacityItems(t *testing.T) {
	const capacity = 3
	q, err := NewSlidingWindow[int](capacity)
	if err != nil {
		t.Fatalf("NewSlidingWindow: %v", err)
	}

	// Put 10 items into a queue of capacity 3: only the last 3 survive,
	// in order.
	for i := 0; i < 10; i++ {
		if err := q.Put(i); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	if q.Len() != capacity {
		t.Fatalf("Len = %d, want %d", q.Len(), capacity)
	}
	if q.Drops() != 7 {
		t.Errorf("Drops = %d, want 7", q.Drops())
	}

	ctx := context.Background()
	for want := 7; want < 10; want++ {
		got, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != want {
			t.Errorf("Get = %d, want %d", got, want)
		}
	}
}

func TestSlidingWindowGetBlocksUntilPut(t *testing.T) {
	q, _ := NewSlidingWindow[string](1)

	got := make(chan string, 1)
	go func() {
		v, err := q.Get(context.Background())
		if err != nil {
			t.Errorf("Get: %v", err)
		}
		got <- v
	}()

	time.Sleep(10 * time.Millisecond)
	if err := q.Put("frame"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case v := <-got:
		if v != "frame" {
			t.Errorf("Get = %q, want %q", v, "frame")
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not return after Put")
	}
}

func TestSlidingWindowGetHonoursContext(t *testing.T) {
	q, _ := NewSlidingWindow[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Get error = %v, want context.DeadlineExceeded", err)
	}
}

func TestSlidingWindowTryGetEmpty(t *testing.T) {
	q, _ := NewSlidingWindow[int](2)
	if _, err := q.TryGet(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("TryGet on empty queue = %v, want ErrEmpty", err)
	}
}

func TestSlidingWindowShutdown(t *testing.T) {
	q, _ := NewSlidingWindow[int](2)
	_ = q.Put(1)

	// A blocked Get must be released by Shutdown.
	empty, _ := NewSlidingWindow[int](2)
	released := make(chan error, 1)
	go func() {
		_, err := empty.Get(context.Background())
		released <- err
	}()
	time.Sleep(10 * time.Millisecond)
	empty.Shutdown()

	select {
	case err := <-released:
		if !errors.Is(err, ErrShutdown) {
			t.Errorf("blocked Get after Shutdown = %v, want ErrShutdown", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Get was not released by Shutdown")
	}

	q.Shutdown()
	q.Shutdown() // idempotent

	if err := q.Put(2); !errors.Is(err, ErrShutdown) {
		t.Errorf("Put after Shutdown = %v, want ErrShutdown", err)
	}
	if _, err := q.Get(context.Background()); !errors.Is(err, ErrShutdown) {
		t.Errorf("Get after Shutdown = %v, want ErrShutdown", err)
	}
	if _, err := q.TryGet(); !errors.Is(err, ErrShutdown) {
		t.Errorf("TryGet after Shutdown = %v, want ErrShutdown", err)
	}
}

func TestSlidingWindowConcurrentProducers(t *testing.T) {
	const (
		producers = 8
		perProd   = 200
		capacity  = 16
	)
	q, _ := NewSlidingWindow[int](capacity)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				_ = q.Put(i)
			}
		}()
	}
	wg.Wait()

	// The invariant under contention: never more than capacity elements,
	// and puts + drops account for every element produced.
	if q.Len() > capacity {
		t.Errorf("Len = %d exceeds capacity %d", q.Len(), capacity)
	}
	total := uint64(producers * perProd)
	if got := q.Drops() + uint64(q.Len()); got != total {
		t.Errorf("drops+len = %d, want %d", got, total)
	}
}
