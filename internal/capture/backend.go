// Package capture implements the microphone ingestion stage: device
// discovery, a push-style capture loop fed by the audio backend's
// callback, xrun and heartbeat supervision, and frame emission into the
// pipeline's sliding-window queue.
//
// The hardware dependency is isolated behind [Backend] so the stage logic
// is testable without a sound card; the production implementation wraps
// miniaudio via malgo.
package capture

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stagelink/ingestd/pkg/audio"
)

// ErrDeviceNotFound is returned by discovery when no enumerated capture
// device matches the configured name.
var ErrDeviceNotFound = errors.New("capture: device not found")

// DeviceInfo describes one enumerated capture device.
type DeviceInfo struct {
	// ID is the backend-specific device identifier.
	ID string

	// Name is the human-readable device name used for substring matching.
	Name string

	// IsDefault reports whether this is the system default capture device.
	IsDefault bool
}

// StreamConfig is the set of parameters requested when opening a stream.
type StreamConfig struct {
	// DeviceID selects the device; empty means the system default.
	DeviceID string

	// SampleRate in Hz. Zero lets the device choose its native rate.
	SampleRate int

	// Format is the requested PCM sample encoding.
	Format audio.SampleFormat

	// Channels is the requested channel count.
	Channels int

	// BlockSamples is the preferred callback chunk size in frames.
	BlockSamples int
}

// Chunk is one delivery from the hardware callback. Xrun chunks carry no
// usable payload; they exist so the stage can track driver over/underruns.
type Chunk struct {
	// Data is raw PCM in the stream's negotiated format. Nil on xrun.
	Data []byte

	// Xrun reports a driver buffer overflow or underflow.
	Xrun bool

	// CaptureTime is the monotonic callback timestamp relative to stream
	// start.
	CaptureTime time.Duration

	// WallTime is the wall-clock callback time.
	WallTime time.Time
}

// DataFunc receives capture chunks. It runs in the backend's callback
// context and must return quickly: construct, enqueue, nothing else.
type DataFunc func(Chunk)

// Stream is an open capture stream. The negotiated parameters may differ
// from the requested ones when the hardware cannot honour them.
type Stream interface {
	// Start begins delivering chunks to the DataFunc.
	Start() error

	// Stop halts delivery. The stream may be started again.
	Stop() error

	// Close releases the device handle. The stream is unusable afterwards.
	Close() error

	// SampleRate returns the rate the device actually runs at.
	SampleRate() int

	// Format returns the negotiated PCM sample encoding.
	Format() audio.SampleFormat

	// Channels returns the negotiated channel count.
	Channels() int
}

// Backend enumerates and opens capture devices.
type Backend interface {
	// Devices lists the available capture devices.
	Devices(ctx context.Context) ([]DeviceInfo, error)

	// Open acquires a stream without starting it. fn receives every
	// chunk once the stream is started.
	Open(ctx context.Context, cfg StreamConfig, fn DataFunc) (Stream, error)
}

// FindDevice returns the first enumerated device whose name contains the
// given substring, mirroring how operators identify microphones in the rig
// config ("USB Audio" rather than a full ALSA identifier).
func FindDevice(devices []DeviceInfo, name string) (DeviceInfo, error) {
	for _, d := range devices {
		if name == "" && d.IsDefault {
			return d, nil
		}
		if name != "" && strings.Contains(d.Name, name) {
			return d, nil
		}
	}
	return DeviceInfo{}, ErrDeviceNotFound
}
