// Package config provides the configuration schema, loader, and change
// watcher for the ingest daemon.
package config

import "time"

// LogLevel controls log verbosity for the ingest daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the ingest daemon.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
// The configuration is startup-fatal: an invalid file aborts the process
// before any device is opened.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Show      ShowConfig      `yaml:"show"`
	Audio     AudioConfig     `yaml:"audio"`
	Buttons   ButtonsConfig   `yaml:"buttons"`
	Devices   DevicesConfig   `yaml:"devices"`
	NATS      NATSConfig      `yaml:"nats"`
	Signaling SignalingConfig `yaml:"signaling"`
}

// ServerConfig holds logging and ops endpoint settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// OpsAddr is the TCP address of the health/metrics HTTP server
	// (e.g., ":9090"). Empty disables the ops server.
	OpsAddr string `yaml:"ops_addr"`
}

// ShowConfig pins the rig topology. The MVP runs a single actor with a
// single avatar; the counts exist so a config written for a larger rig
// fails loudly instead of silently dropping devices.
type ShowConfig struct {
	// Name labels the show in logs.
	Name string `yaml:"name"`

	// Actors is the number of live actors (and microphones).
	Actors int `yaml:"actors"`

	// Avatars is the number of controlled avatars (and avatar buttons).
	Avatars int `yaml:"avatars"`
}

// AudioConfig describes the single actor microphone and its processing.
type AudioConfig struct {
	// DeviceName selects the capture device by substring match against
	// the enumerated device names. Empty selects the system default.
	DeviceName string `yaml:"device_name"`

	// SampleRate is the preferred capture rate in Hz. The stage falls
	// back to the device default when the hardware refuses.
	SampleRate int `yaml:"sample_rate"`

	// BlockSamples is the preferred callback chunk size in frames.
	BlockSamples int `yaml:"block_samples"`

	// QueueCapacity bounds the raw and processed frame queues.
	QueueCapacity int `yaml:"queue_capacity"`

	// SilenceThresholdDBFS marks frames below this RMS level as silence.
	SilenceThresholdDBFS float64 `yaml:"silence_threshold_dbfs"`

	// VADAggressiveness tunes the voice activity detector, 0 (lenient)
	// to 3 (aggressive).
	VADAggressiveness int `yaml:"vad_aggressiveness"`

	// Denoise enables the noise gate on outgoing frames.
	Denoise bool `yaml:"denoise"`

	// LivenessWindowMs is the maximum capture heartbeat age before the
	// stream is restarted.
	LivenessWindowMs int `yaml:"liveness_window_ms"`
}

// LivenessWindow returns the heartbeat window as a duration.
func (a AudioConfig) LivenessWindow() time.Duration {
	return time.Duration(a.LivenessWindowMs) * time.Millisecond
}

// ButtonsConfig describes the physical control buttons.
type ButtonsConfig struct {
	// DebounceMs is the minimum interval between accepted presses,
	// shared by all button devices.
	DebounceMs int `yaml:"debounce_ms"`

	// Reset is the operator's reset button.
	Reset ResetButtonConfig `yaml:"reset"`

	// Avatars holds one button device per avatar, in avatar-id order.
	Avatars []AvatarButtonConfig `yaml:"avatars"`
}

// Debounce returns the debounce window as a duration.
func (b ButtonsConfig) Debounce() time.Duration {
	return time.Duration(b.DebounceMs) * time.Millisecond
}

// ResetButtonConfig describes the reset button device.
type ResetButtonConfig struct {
	// Path is the input device path (e.g., "/dev/input/event3").
	Path string `yaml:"path"`

	// Key is the evdev key name bound to reset (e.g., "KEY_R").
	Key string `yaml:"key"`

	// Grab takes exclusive access to the device.
	Grab bool `yaml:"grab"`
}

// AvatarButtonConfig describes one avatar's button device.
type AvatarButtonConfig struct {
	// Path is the input device path.
	Path string `yaml:"path"`

	// SpeakKey is the evdev key name bound to the speak action.
	SpeakKey string `yaml:"speak_key"`

	// ExitKey optionally binds a key to the exit action.
	ExitKey string `yaml:"exit_key"`

	// Grab takes exclusive access to the device.
	Grab bool `yaml:"grab"`
}

// DevicesConfig holds the shared reconnect policy.
type DevicesConfig struct {
	// BackoffMs is the fixed delay between reconnect attempts.
	BackoffMs int `yaml:"backoff_ms"`

	// MaxReconnectAttempts caps consecutive failed opens per device.
	MaxReconnectAttempts uint `yaml:"max_reconnect_attempts"`
}

// Backoff returns the reconnect delay as a duration.
func (d DevicesConfig) Backoff() time.Duration {
	return time.Duration(d.BackoffMs) * time.Millisecond
}

// NATSConfig holds the transport connection settings.
type NATSConfig struct {
	// URL is the server address (e.g., "tls://nats.local:4222").
	URL string `yaml:"url"`

	// UseTLS enables mutual TLS.
	UseTLS bool `yaml:"use_tls"`

	// CACert, ClientCert and ClientKey are PEM file paths, required
	// when UseTLS is set.
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`

	// AudioSubjectPrefix prefixes the per-actor audio subjects.
	// Defaults to "AUDIO".
	AudioSubjectPrefix string `yaml:"audio_subject_prefix"`
}

// SignalingConfig holds the optional auth handshake with the downstream
// real-time transport. An empty URL skips the handshake.
type SignalingConfig struct {
	// URL is the ws:// or wss:// signaling endpoint.
	URL string `yaml:"url"`

	// Bearer is the credential presented during registration.
	Bearer string `yaml:"bearer"`
}
