package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeCapability scripts the behaviour of Open and Run per attempt.
type fakeCapability struct {
	mu        sync.Mutex
	openErrs  []error // consumed one per Open call; nil entry = success
	runErrs   []error // consumed one per Run call
	blockRun  bool    // Run blocks until cancellation instead
	openCalls int
	runCalls  int
	closes    int
}

func (f *fakeCapability) Open(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls++
	if len(f.openErrs) == 0 {
		return nil
	}
	err := f.openErrs[0]
	f.openErrs = f.openErrs[1:]
	return err
}

func (f *fakeCapability) Run(ctx context.Context) error {
	f.mu.Lock()
	f.runCalls++
	if f.blockRun {
		f.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	defer f.mu.Unlock()
	if len(f.runErrs) == 0 {
		return nil
	}
	err := f.runErrs[0]
	f.runErrs = f.runErrs[1:]
	return err
}

func (f *fakeCapability) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// statusRecorder collects emitted statuses.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(s Status) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
}

func (r *statusRecorder) get() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func TestSessionPermanentFailureEmitsDeadOnce(t *testing.T) {
	openErr := errors.New("no such device")
	cap := &fakeCapability{openErrs: []error{openErr, openErr, openErr}}
	rec := &statusRecorder{}

	s := NewSession(Config{
		Name:                 "mic0",
		Capability:           cap,
		Backoff:              time.Millisecond,
		MaxReconnectAttempts: 3,
		OnStatus:             rec.record,
	})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run returned %v, want nil on permanent failure", err)
	}

	if got := s.State(); got != StatePermanentlyFailed {
		t.Errorf("state = %v, want permanently-failed", got)
	}
	if cap.openCalls != 3 {
		t.Errorf("open attempts = %d, want exactly 3", cap.openCalls)
	}

	want := []Status{StatusDead}
	got := rec.get()
	if len(got) != 1 || got[0] != StatusDead {
		t.Errorf("statuses = %v, want %v", got, want)
	}

	h := s.Health()
	if h.ReconnectAttempts != 3 {
		t.Errorf("ReconnectAttempts = %d, want 3", h.ReconnectAttempts)
	}
}

func TestSessionResetsCountersOnSuccessfulOpen(t *testing.T) {
	openErr := errors.New("busy")
	cap := &fakeCapability{
		openErrs: []error{openErr, openErr, nil},
		runErrs:  []error{nil},
	}
	rec := &statusRecorder{}

	s := NewSession(Config{
		Name:                 "mic0",
		Capability:           cap,
		Backoff:              time.Millisecond,
		MaxReconnectAttempts: 5,
		OnStatus:             rec.record,
	})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	h := s.Health()
	if h.ReconnectAttempts != 0 {
		t.Errorf("ReconnectAttempts after successful open = %d, want 0", h.ReconnectAttempts)
	}
	if h.TotalErrors != 2 {
		t.Errorf("TotalErrors = %d, want 2", h.TotalErrors)
	}

	got := rec.get()
	want := []Status{StatusConnected, StatusDisconnected}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("statuses = %v, want %v", got, want)
	}
}

func TestSessionRestartDoesNotConsumeBudget(t *testing.T) {
	restart := fmt.Errorf("xrun burst: %w", ErrRestart)
	cap := &fakeCapability{
		runErrs: []error{restart, restart, nil},
	}

	s := NewSession(Config{
		Name:                 "mic0",
		Capability:           cap,
		Backoff:              time.Millisecond,
		MaxReconnectAttempts: 1,
	})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cap.runCalls != 3 {
		t.Errorf("run calls = %d, want 3 (two restarts then clean stop)", cap.runCalls)
	}
	if h := s.Health(); h.ReconnectAttempts != 0 {
		t.Errorf("restart consumed reconnect budget: attempts = %d", h.ReconnectAttempts)
	}
	if cap.closes != 3 {
		t.Errorf("closes = %d, want one per run", cap.closes)
	}
}

func TestSessionHardErrorEmitsDisconnected(t *testing.T) {
	cap := &fakeCapability{
		runErrs: []error{errors.New("unplugged"), nil},
	}
	rec := &statusRecorder{}

	s := NewSession(Config{
		Name:                 "btn0",
		Capability:           cap,
		Backoff:              time.Millisecond,
		MaxReconnectAttempts: 3,
		OnStatus:             rec.record,
	})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := rec.get()
	want := []Status{StatusConnected, StatusDisconnected, StatusConnected, StatusDisconnected}
	if len(got) != len(want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSessionCancelWhileActiveEmitsDisconnected(t *testing.T) {
	cap := &fakeCapability{blockRun: true}
	rec := &statusRecorder{}
	s := NewSession(Config{
		Name:       "mic0",
		Capability: cap,
		OnStatus:   rec.record,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.get()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never connected")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	got := rec.get()
	want := []Status{StatusConnected, StatusDisconnected}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if got := s.State(); got != StateDisconnected {
		t.Errorf("state = %v, want disconnected", got)
	}
}

func TestSessionBackoffIsCancellable(t *testing.T) {
	// Every open fails, large backoff: cancellation must interrupt the
	// sleep promptly.
	cap := &fakeCapability{openErrs: []error{errors.New("gone"), errors.New("gone")}}
	s := NewSession(Config{
		Name:                 "mic0",
		Capability:           cap,
		Backoff:              time.Minute,
		MaxReconnectAttempts: 10,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not observe cancellation during backoff")
	}
}

func TestSessionHeartbeatBookkeeping(t *testing.T) {
	s := NewSession(Config{Name: "mic0", Capability: &fakeCapability{}})

	if n := s.RecordError(); n != 1 {
		t.Errorf("RecordError = %d, want 1", n)
	}
	if n := s.RecordError(); n != 2 {
		t.Errorf("RecordError = %d, want 2", n)
	}

	s.Heartbeat()
	h := s.Health()
	if h.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors after heartbeat = %d, want 0", h.ConsecutiveErrors)
	}
	if h.TotalErrors != 2 {
		t.Errorf("TotalErrors = %d, want 2", h.TotalErrors)
	}
	if age := s.HeartbeatAge(); age > time.Second {
		t.Errorf("HeartbeatAge = %v, want recent", age)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s := NewSession(Config{Name: "btn0", Capability: &fakeCapability{}})

	if err := r.Add("/dev/input/event3", s); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add("/dev/input/event3", s); err == nil {
		t.Error("duplicate path accepted")
	}
	if got := r.Get("/dev/input/event3"); got != s {
		t.Error("Get returned wrong session")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	snap := r.Snapshot()
	if snap["/dev/input/event3"] != StateDisconnected {
		t.Errorf("Snapshot state = %v, want disconnected", snap["/dev/input/event3"])
	}

	if !r.Remove("/dev/input/event3") {
		t.Error("Remove returned false for present path")
	}
	if r.Remove("/dev/input/event3") {
		t.Error("Remove returned true for absent path")
	}
}
