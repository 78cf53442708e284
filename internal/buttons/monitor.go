package buttons

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stagelink/ingestd/internal/device"
	"github.com/stagelink/ingestd/internal/queue"
)

// MonitorConfig parameterises a button [Monitor].
type MonitorConfig struct {
	// Name labels the monitor in logs.
	Name string

	// Path is the input device path, also used as the event SourceID.
	Path string

	// Grab takes exclusive access to the device while the monitor runs.
	Grab bool

	// Debounce is the minimum interval between accepted presses. An
	// event inside the window after an accepted press is suppressed.
	Debounce time.Duration

	// Keys maps hardware key codes to actions. Presses of unmapped keys
	// are dropped.
	Keys map[KeyCode]Action

	// Dispatch receives the accepted events.
	Dispatch *queue.Dispatch[Event]

	// Open acquires the device. Defaults to [OpenEvdev].
	Open OpenFunc
}

// Monitor watches one physical button device. It implements
// [device.Capability] and is driven by a device.Session, so reconnects
// keep the key map, debounce window, and priority rules.
type Monitor struct {
	cfg MonitorConfig

	dev          InputDevice
	grabbed      bool
	lastAccepted time.Time
}

// NewMonitor creates a monitor for one device.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Open == nil {
		cfg.Open = OpenEvdev
	}
	return &Monitor{cfg: cfg}
}

// Open acquires the device and, when configured, grabs it exclusively.
func (m *Monitor) Open(_ context.Context) error {
	dev, err := m.cfg.Open(m.cfg.Path)
	if err != nil {
		return fmt.Errorf("buttons %s: %w", m.cfg.Name, err)
	}
	if m.cfg.Grab {
		if err := dev.Grab(); err != nil {
			dev.Close()
			return fmt.Errorf("buttons %s: %w", m.cfg.Name, err)
		}
		m.grabbed = true
	}
	m.dev = dev
	return nil
}

// Run reads events until the context ends or the device reports a hard
// I/O error. Each accepted press is enqueued at its action's priority.
func (m *Monitor) Run(ctx context.Context) error {
	// The reader keeps its own handle: Close nils m.dev as soon as Run
	// returns, possibly while the reader is between two ReadEvent calls.
	dev := m.dev
	if dev == nil {
		return fmt.Errorf("buttons %s: not open", m.cfg.Name)
	}

	events := make(chan KeyEvent)
	readErr := make(chan error, 1)
	go func() {
		for {
			ev, err := dev.ReadEvent()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return fmt.Errorf("buttons %s: device lost: %w", m.cfg.Name, err)

		case ev := <-events:
			m.handle(ev)
		}
	}
}

// Close releases the device, ungrabbing first when it was grabbed.
func (m *Monitor) Close() error {
	if m.dev == nil {
		return nil
	}
	if m.grabbed {
		if err := m.dev.Ungrab(); err != nil {
			slog.Warn("button ungrab failed", "monitor", m.cfg.Name, "err", err)
		}
		m.grabbed = false
	}
	err := m.dev.Close()
	m.dev = nil
	return err
}

// EmitStatus enqueues a lifecycle status event for this device. Wired as
// the session's OnStatus callback.
func (m *Monitor) EmitStatus(st device.Status) {
	ev := Event{
		SourceID:  m.cfg.Path,
		Kind:      KindStatus,
		Status:    st,
		Timestamp: time.Now(),
	}
	if err := m.cfg.Dispatch.Enqueue(PriorityFor(ev), ev); err != nil {
		slog.Debug("status event dropped", "monitor", m.cfg.Name, "err", err)
	}
}

// handle filters one key event down to an accepted action press.
func (m *Monitor) handle(ev KeyEvent) {
	if ev.State != KeyDown {
		return
	}
	action, ok := m.cfg.Keys[ev.Code]
	if !ok {
		slog.Debug("unmapped key press dropped",
			"monitor", m.cfg.Name, "key", ev.Code)
		return
	}
	if !m.lastAccepted.IsZero() && ev.Time.Before(m.lastAccepted.Add(m.cfg.Debounce)) {
		slog.Debug("press suppressed by debounce",
			"monitor", m.cfg.Name, "key", ev.Code,
			"since_last", ev.Time.Sub(m.lastAccepted))
		return
	}
	m.lastAccepted = ev.Time

	out := Event{
		SourceID:  m.cfg.Path,
		Kind:      KindAction,
		Action:    action,
		Timestamp: ev.Time,
	}
	if err := m.cfg.Dispatch.Enqueue(PriorityFor(out), out); err != nil {
		slog.Debug("action event dropped", "monitor", m.cfg.Name, "err", err)
		return
	}
	slog.Info("button press accepted",
		"monitor", m.cfg.Name, "key", ev.Code, "action", action)
}
