package buttons

import (
	"fmt"
	"time"

	evdev "github.com/holoplot/go-evdev"
)

// evdevDevice adapts a Linux evdev handle to [InputDevice].
type evdevDevice struct {
	dev *evdev.InputDevice
}

// OpenEvdev opens a Linux input device by path. This is the production
// [OpenFunc].
func OpenEvdev(path string) (InputDevice, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("buttons: open %s: %w", path, err)
	}
	return &evdevDevice{dev: dev}, nil
}

func (d *evdevDevice) Grab() error {
	if err := d.dev.Grab(); err != nil {
		return fmt.Errorf("buttons: grab: %w", err)
	}
	return nil
}

func (d *evdevDevice) Ungrab() error {
	if err := d.dev.Ungrab(); err != nil {
		return fmt.Errorf("buttons: ungrab: %w", err)
	}
	return nil
}

// ReadEvent blocks on the device, discarding sync and misc traffic until
// a key event arrives.
func (d *evdevDevice) ReadEvent() (KeyEvent, error) {
	for {
		ev, err := d.dev.ReadOne()
		if err != nil {
			return KeyEvent{}, fmt.Errorf("buttons: read: %w", err)
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}
		var state KeyState
		switch ev.Value {
		case 0:
			state = KeyUp
		case 1:
			state = KeyDown
		default:
			state = KeyRepeat
		}
		return KeyEvent{
			Code:  KeyCode(ev.Code),
			State: state,
			Time:  time.Unix(int64(ev.Time.Sec), int64(ev.Time.Usec)*1000),
		}, nil
	}
}

func (d *evdevDevice) Close() error {
	return d.dev.Close()
}
