package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDispatchOrdersByPriority(t *testing.T) {
	d := NewDispatch[string]()
	_ = d.Enqueue(PriorityStandard, "speak")
	_ = d.Enqueue(PriorityHigh, "reset")
	_ = d.Enqueue(PriorityLow, "telemetry")
	_ = d.Enqueue(PriorityMedium, "connected")
	_ = d.Enqueue(PriorityEmergency, "stop")

	ctx := context.Background()
	want := []string{"stop", "reset", "connected", "speak", "telemetry"}
	for _, w := range want {
		e, err := d.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if e.Payload != w {
			t.Errorf("Dequeue = %q, want %q", e.Payload, w)
		}
	}
}

func TestDispatchFIFOWithinPriority(t *testing.T) {
	d := NewDispatch[int]()
	for i := 0; i < 5; i++ {
		_ = d.Enqueue(PriorityStandard, i)
	}

	ctx := context.Background()
	for want := 0; want < 5; want++ {
		e, err := d.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if e.Payload != want {
			t.Errorf("equal-priority order broken: got %d, want %d", e.Payload, want)
		}
	}
}

func TestDispatchDequeueBlocksUntilEnqueue(t *testing.T) {
	d := NewDispatch[string]()

	got := make(chan Envelope[string], 1)
	go func() {
		e, err := d.Dequeue(context.Background())
		if err != nil {
			t.Errorf("Dequeue: %v", err)
		}
		got <- e
	}()

	time.Sleep(10 * time.Millisecond)
	_ = d.Enqueue(PriorityHigh, "reset")

	select {
	case e := <-got:
		if e.Payload != "reset" {
			t.Errorf("Dequeue = %q, want %q", e.Payload, "reset")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after Enqueue")
	}
}

func TestDispatchShutdown(t *testing.T) {
	d := NewDispatch[int]()

	released := make(chan error, 1)
	go func() {
		_, err := d.Dequeue(context.Background())
		released <- err
	}()
	time.Sleep(10 * time.Millisecond)
	d.Shutdown()
	d.Shutdown() // idempotent

	select {
	case err := <-released:
		if !errors.Is(err, ErrShutdown) {
			t.Errorf("blocked Dequeue after Shutdown = %v, want ErrShutdown", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Dequeue was not released by Shutdown")
	}

	if err := d.Enqueue(PriorityHigh, 1); !errors.Is(err, ErrShutdown) {
		t.Errorf("Enqueue after Shutdown = %v, want ErrShutdown", err)
	}
}

func TestDispatchDequeueHonoursContext(t *testing.T) {
	d := NewDispatch[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Dequeue error = %v, want context.DeadlineExceeded", err)
	}
}

func TestPriorityString(t *testing.T) {
	cases := map[Priority]string{
		PriorityEmergency: "emergency",
		PriorityHigh:      "high",
		PriorityMedium:    "medium",
		PriorityStandard:  "standard",
		PriorityLow:       "low",
		Priority(99):      "unknown",
	}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Errorf("Priority(%d).String() = %q, want %q", int(p), got, want)
		}
	}
}
