package buttons

import "time"

// KeyState is the transition a key event reports.
type KeyState int

const (
	// KeyUp is a key release.
	KeyUp KeyState = iota

	// KeyDown is a key press. The only state a monitor acts on.
	KeyDown

	// KeyRepeat is an auto-repeat while held.
	KeyRepeat
)

// KeyEvent is one key transition read from an input device.
type KeyEvent struct {
	// Code identifies the key.
	Code KeyCode

	// State is the transition kind.
	State KeyState

	// Time is the kernel timestamp of the event.
	Time time.Time
}

// InputDevice is an open control-button device. ReadEvent blocks until
// the next key event; closing the device from another goroutine unblocks
// it with an error.
type InputDevice interface {
	// Grab takes exclusive access so the presses do not leak into other
	// consumers (a stray terminal, the desktop session).
	Grab() error

	// Ungrab releases exclusive access.
	Ungrab() error

	// ReadEvent returns the next key event, skipping non-key traffic.
	ReadEvent() (KeyEvent, error)

	// Close releases the device handle.
	Close() error
}

// OpenFunc acquires an [InputDevice] by its device path.
type OpenFunc func(path string) (InputDevice, error)
