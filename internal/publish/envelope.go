package publish

import (
	"time"

	"github.com/stagelink/ingestd/internal/buttons"
	"github.com/stagelink/ingestd/internal/device"
)

// buttonDataVersion is bumped when the wire envelope changes shape.
const buttonDataVersion = 1

// ButtonData is the versioned JSON envelope for button events on the
// interface subject. Exactly one of Action and Status is non-nil,
// selected by MessageType; the other serialises as null so consumers can
// rely on both keys being present.
type ButtonData struct {
	// AvatarID is the logical target of the press. -1 is the control
	// (reset) button; 0..n address avatar buttons.
	AvatarID int `json:"avatar_id"`

	// MessageType is "action" for presses, "status" for lifecycle events.
	MessageType string `json:"message_type"`

	// Action is the wire name of the pressed action.
	Action *string `json:"action"`

	// Status is "connected", "disconnected" or "dead".
	Status *string `json:"status"`

	// Version is the envelope schema version.
	Version int `json:"version"`

	// ObjectType tags the payload for schemaless consumers.
	ObjectType string `json:"object_type"`

	// TimeStamp is Unix seconds with fractional part.
	TimeStamp float64 `json:"time_stamp"`
}

// NewButtonData builds the wire envelope for one button event.
func NewButtonData(avatarID int, ev buttons.Event) ButtonData {
	d := ButtonData{
		AvatarID:   avatarID,
		Version:    buttonDataVersion,
		ObjectType: "ButtonData",
		TimeStamp:  float64(ev.Timestamp.UnixNano()) / float64(time.Second),
	}
	if ev.Kind == buttons.KindAction {
		d.MessageType = "action"
		action := ev.Action.String()
		d.Action = &action
	} else {
		d.MessageType = "status"
		status := statusName(ev.Status)
		d.Status = &status
	}
	return d
}

func statusName(st device.Status) string {
	switch st {
	case device.StatusConnected:
		return "connected"
	case device.StatusDisconnected:
		return "disconnected"
	default:
		return "dead"
	}
}
