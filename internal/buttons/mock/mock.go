// Package mock provides an in-memory mock implementation of the
// [buttons.InputDevice] interface for use in unit tests.
//
// The mock is safe for concurrent use. Tests push key events through
// [Device.Push]; ReadEvent blocks until an event is pushed or the device
// is closed, matching the blocking contract of the real evdev handle:
//
//	dev := mock.NewDevice()
//	monitor := buttons.NewMonitor(buttons.MonitorConfig{
//	    Open: func(string) (buttons.InputDevice, error) { return dev, nil },
//	    ...
//	})
//	// ... run through the code under test, then:
//	dev.Push(buttons.KeyEvent{Code: code, State: buttons.KeyDown, Time: t})
package mock

import (
	"errors"
	"sync"

	"github.com/stagelink/ingestd/internal/buttons"
)

// ErrClosed is returned by ReadEvent after the device is closed.
var ErrClosed = errors.New("mock: device closed")

// Device is a mock implementation of [buttons.InputDevice].
// Inspect the Call* fields after use; set the *Error fields beforehand
// to control return values.
type Device struct {
	mu sync.Mutex

	// GrabError is returned by [Device.Grab].
	GrabError error

	// UngrabError is returned by [Device.Ungrab].
	UngrabError error

	// CallCountGrab records how many times Grab was called.
	CallCountGrab int

	// CallCountUngrab records how many times Ungrab was called.
	CallCountUngrab int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	events chan buttons.KeyEvent
	done   chan struct{}
	once   sync.Once
}

// NewDevice creates an open mock device.
func NewDevice() *Device {
	return &Device{
		events: make(chan buttons.KeyEvent, 16),
		done:   make(chan struct{}),
	}
}

// Push delivers a key event to the next ReadEvent call.
func (d *Device) Push(ev buttons.KeyEvent) {
	d.events <- ev
}

// Grab implements [buttons.InputDevice].
func (d *Device) Grab() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountGrab++
	return d.GrabError
}

// Ungrab implements [buttons.InputDevice].
func (d *Device) Ungrab() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountUngrab++
	return d.UngrabError
}

// ReadEvent implements [buttons.InputDevice]. It blocks until an event
// is pushed or the device is closed.
func (d *Device) ReadEvent() (buttons.KeyEvent, error) {
	select {
	case ev := <-d.events:
		return ev, nil
	case <-d.done:
		return buttons.KeyEvent{}, ErrClosed
	}
}

// Close implements [buttons.InputDevice]. It unblocks pending ReadEvent
// calls.
func (d *Device) Close() error {
	d.mu.Lock()
	d.CallCountClose++
	d.mu.Unlock()
	d.once.Do(func() { close(d.done) })
	return nil
}
