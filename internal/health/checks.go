package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stagelink/ingestd/internal/device"
)

// Pinger reports transport connectivity. Satisfied by *nats.Conn via
// IsConnected.
type Pinger interface {
	IsConnected() bool
}

// NATSChecker reports failure while the transport connection is down.
// Reconnects are handled by the client itself, so a transient failure here
// clears on its own.
func NATSChecker(p Pinger) Checker {
	return Checker{
		Name: "nats",
		Check: func(_ context.Context) error {
			if !p.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		},
	}
}

// DevicesChecker reports failure when any registered device session has
// permanently failed. Devices mid-reconnect do not fail readiness; a rig
// with a flapping cable is still serving the show.
func DevicesChecker(reg *device.Registry) Checker {
	return Checker{
		Name: "devices",
		Check: func(_ context.Context) error {
			var dead []string
			for path, state := range reg.Snapshot() {
				if state == device.StatePermanentlyFailed {
					dead = append(dead, path)
				}
			}
			if len(dead) == 0 {
				return nil
			}
			sort.Strings(dead)
			return fmt.Errorf("dead: %s", strings.Join(dead, ", "))
		},
	}
}
