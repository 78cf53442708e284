// Package device provides the generic resilience machinery shared by every
// hardware source in the ingest rig: a supervised per-device [Session] with
// a reconnect/backoff state machine, per-session [Health] bookkeeping, and
// a mutex-guarded [Registry] of live sessions.
//
// A Session knows nothing about microphones or buttons. Device specifics
// live behind the [Capability] interface; the session only decides when to
// open, when to restart, when to retry, and when to give up.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrRestart is the typed restart signal a [Capability.Run] returns when
// the stream should be torn down and reopened without counting as a device
// failure — an xrun burst or a stalled heartbeat, not an unplugged cable.
var ErrRestart = errors.New("device: stream restart required")

// State is the position of a [Session] in its lifecycle state machine.
type State int

const (
	// StateDisconnected means no device handle is held. The initial state
	// and the state after any failure.
	StateDisconnected State = iota

	// StateConnecting means an open attempt is in flight.
	StateConnecting

	// StateActive means the device is open and streaming.
	StateActive

	// StateDegraded means the device is open but unhealthy (error burst or
	// heartbeat timeout) and a controlled restart is in progress.
	StateDegraded

	// StatePermanentlyFailed is terminal: the reconnect budget is spent.
	// The session emits a Dead status exactly once and stops.
	StatePermanentlyFailed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	case StatePermanentlyFailed:
		return "permanently-failed"
	default:
		return "unknown"
	}
}

// Status is the device-lifecycle event a session reports to its owner.
type Status int

const (
	// StatusConnected is emitted after every successful open.
	StatusConnected Status = iota

	// StatusDisconnected is emitted whenever an open device is released:
	// a hard I/O error, a clean stop, or cancellation while streaming.
	StatusDisconnected

	// StatusDead is emitted exactly once, when the session permanently
	// fails.
	StatusDead
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Health tracks the error and liveness counters for one session. Values
// are read through [Session.Health]; the session owns all mutation.
type Health struct {
	// ConsecutiveErrors counts errors since the last clean read. Reset on
	// every healthy callback.
	ConsecutiveErrors uint

	// TotalErrors counts every error over the session lifetime.
	TotalErrors uint

	// LastHeartbeat is the monotonic time of the last healthy callback.
	LastHeartbeat time.Time

	// ReconnectAttempts counts failed opens since the last successful
	// one. Reset to zero only by a fully successful open, never
	// decremented otherwise.
	ReconnectAttempts uint

	// MaxReconnectAttempts is the retry budget; reaching it is the only
	// path to permanent failure.
	MaxReconnectAttempts uint
}

// Capability is the device-specific half of a session. Open acquires the
// hardware handle, Run blocks while streaming, Close releases the handle.
//
// Run's return value drives the state machine: nil for a clean stop, an
// error wrapping [ErrRestart] for a controlled restart (Degraded), any
// other error for a hard disconnect.
type Capability interface {
	Open(ctx context.Context) error
	Run(ctx context.Context) error
	Close() error
}

// Config parameterises a [Session].
type Config struct {
	// Name labels the session in logs and status events.
	Name string

	// Capability is the device implementation to supervise.
	Capability Capability

	// Backoff is the fixed delay between reconnect attempts.
	Backoff time.Duration

	// MaxReconnectAttempts caps consecutive failed opens. Zero means a
	// single attempt.
	MaxReconnectAttempts uint

	// OnStatus receives lifecycle events. May be nil. Called from the
	// session goroutine; must not block.
	OnStatus func(Status)

	// OnRetry receives the attempt count after each failed open. May be
	// nil. Same calling rules as OnStatus.
	OnRetry func(attempt uint)
}

// Session supervises one hardware device: open → run → classify failure →
// retry with backoff or fail permanently. One Run call per session; the
// session is not reusable after Run returns.
type Session struct {
	cfg Config

	mu     sync.Mutex
	state  State
	health Health

	deadOnce sync.Once
}

// NewSession creates a session in the Disconnected state.
func NewSession(cfg Config) *Session {
	return &Session{
		cfg:   cfg,
		state: StateDisconnected,
		health: Health{
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		},
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Health returns a snapshot of the session's health counters.
func (s *Session) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// Heartbeat records a healthy device callback: updates the liveness
// timestamp and clears the consecutive error counter.
func (s *Session) Heartbeat() {
	s.mu.Lock()
	s.health.LastHeartbeat = time.Now()
	s.health.ConsecutiveErrors = 0
	s.mu.Unlock()
}

// RecordError bumps the error counters and returns the new consecutive
// count, letting capabilities implement burst thresholds.
func (s *Session) RecordError() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health.ConsecutiveErrors++
	s.health.TotalErrors++
	return s.health.ConsecutiveErrors
}

// HeartbeatAge returns the time since the last healthy callback.
func (s *Session) HeartbeatAge() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.health.LastHeartbeat.IsZero() {
		return 0
	}
	return time.Since(s.health.LastHeartbeat)
}

// Run drives the session until the context is cancelled, the capability
// stops cleanly, or the reconnect budget is spent. Permanent failure is
// reported through the Dead status and a nil return — one dead device must
// not bring down sibling sessions.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setState(StateConnecting)
		if err := s.cfg.Capability.Open(ctx); err != nil {
			if failed := s.openFailed(err); failed {
				return nil
			}
			if err := s.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		s.openSucceeded()
		s.emit(StatusConnected)

		runErr := s.cfg.Capability.Run(ctx)
		if err := s.cfg.Capability.Close(); err != nil {
			slog.Warn("device close failed", "device", s.cfg.Name, "err", err)
		}

		switch {
		case runErr == nil:
			s.setState(StateDisconnected)
			s.emit(StatusDisconnected)
			return nil

		case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
			s.setState(StateDisconnected)
			s.emit(StatusDisconnected)
			return runErr

		case errors.Is(runErr, ErrRestart):
			// Controlled restart: does not consume the reconnect budget.
			s.setState(StateDegraded)
			slog.Warn("device degraded, restarting stream",
				"device", s.cfg.Name, "reason", runErr)

		default:
			// Hard I/O failure — the device is gone until reopened.
			s.setState(StateDisconnected)
			s.emit(StatusDisconnected)
			slog.Error("device disconnected",
				"device", s.cfg.Name, "err", runErr)
		}

		if err := s.sleep(ctx); err != nil {
			return err
		}
	}
}

// openFailed accounts one failed open. It returns true when the reconnect
// budget is spent and the session has permanently failed.
func (s *Session) openFailed(err error) bool {
	s.mu.Lock()
	s.health.ReconnectAttempts++
	s.health.TotalErrors++
	attempts := s.health.ReconnectAttempts
	budget := s.health.MaxReconnectAttempts
	s.mu.Unlock()

	if s.cfg.OnRetry != nil {
		s.cfg.OnRetry(attempts)
	}

	if attempts >= max(budget, 1) {
		s.setState(StatePermanentlyFailed)
		s.deadOnce.Do(func() { s.emit(StatusDead) })
		slog.Error("device permanently failed",
			"device", s.cfg.Name,
			"attempts", attempts,
			"err", err)
		return true
	}

	slog.Warn("device open failed, will retry",
		"device", s.cfg.Name,
		"attempt", attempts,
		"max_attempts", budget,
		"backoff", s.cfg.Backoff,
		"err", err)
	return false
}

// openSucceeded resets the retry and error counters. This is the only
// place ReconnectAttempts returns to zero.
func (s *Session) openSucceeded() {
	s.mu.Lock()
	s.health.ReconnectAttempts = 0
	s.health.ConsecutiveErrors = 0
	s.health.LastHeartbeat = time.Now()
	s.state = StateActive
	s.mu.Unlock()
	slog.Info("device connected", "device", s.cfg.Name)
}

// sleep waits out the fixed backoff, returning early when the context is
// cancelled. Shutdown must never wait behind a retry delay.
func (s *Session) sleep(ctx context.Context) error {
	if s.cfg.Backoff <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.cfg.Backoff)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) emit(st Status) {
	if s.cfg.OnStatus != nil {
		s.cfg.OnStatus(st)
	}
}

// String implements fmt.Stringer for log output.
func (s *Session) String() string {
	return fmt.Sprintf("session(%s, %s)", s.cfg.Name, s.State())
}
