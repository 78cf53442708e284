// Package buttons implements the physical control-button stage: a
// per-device monitor that reads raw input events, keeps only mapped
// key-down presses, debounces them, and emits prioritised action and
// status events into the dispatch queue.
//
// The hardware dependency is isolated behind [InputDevice]; the
// production implementation wraps Linux evdev, tests use the mock
// sub-package.
package buttons

import (
	"time"

	"github.com/stagelink/ingestd/internal/device"
	"github.com/stagelink/ingestd/internal/queue"
)

// Action is a show-control command bound to a physical key.
type Action int

const (
	// ActionUnset is the zero value; it never reaches the dispatch queue.
	ActionUnset Action = iota

	// ActionReset puts the show state back to its starting point.
	ActionReset

	// ActionSpeak opens the actor's speech gate.
	ActionSpeak

	// ActionExit requests an orderly end of the session.
	ActionExit
)

// String returns the wire name of the action.
func (a Action) String() string {
	switch a {
	case ActionReset:
		return "reset"
	case ActionSpeak:
		return "speak"
	case ActionExit:
		return "exit"
	default:
		return "unset"
	}
}

// Kind discriminates the two event flavours a monitor emits.
type Kind int

const (
	// KindAction carries a debounced key press mapped to an [Action].
	KindAction Kind = iota

	// KindStatus carries a device lifecycle transition.
	KindStatus
)

// Event is one emitted button occurrence. Exactly one of Action and
// Status is meaningful, selected by Kind.
type Event struct {
	// SourceID identifies the originating device, usually its path.
	SourceID string

	// Kind selects between the Action and Status fields.
	Kind Kind

	// Action is set when Kind is KindAction.
	Action Action

	// Status is set when Kind is KindStatus.
	Status device.Status

	// Timestamp is the hardware event time for actions, emit time for
	// statuses.
	Timestamp time.Time
}

// PriorityFor maps an event to its dispatch priority. Reset must outrun
// everything an operator can press; a dead device must outrun routine
// connect/disconnect chatter.
func PriorityFor(ev Event) queue.Priority {
	if ev.Kind == KindAction {
		if ev.Action == ActionReset {
			return queue.PriorityHigh
		}
		return queue.PriorityStandard
	}
	if ev.Status == device.StatusDead {
		return queue.PriorityHigh
	}
	return queue.PriorityMedium
}
