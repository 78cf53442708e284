package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stagelink/ingestd/internal/buttons"
)

// Defaults applied by [LoadFromReader] before validation.
const (
	defaultSampleRate        = 48000
	defaultBlockSamples      = 480
	defaultQueueCapacity     = 64
	defaultSilenceDBFS       = -45.0
	defaultLivenessWindowMs  = 2000
	defaultDebounceMs        = 120
	defaultBackoffMs         = 1000
	defaultReconnectAttempts = 5
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = defaultSampleRate
	}
	if cfg.Audio.BlockSamples == 0 {
		cfg.Audio.BlockSamples = defaultBlockSamples
	}
	if cfg.Audio.QueueCapacity == 0 {
		cfg.Audio.QueueCapacity = defaultQueueCapacity
	}
	if cfg.Audio.SilenceThresholdDBFS == 0 {
		cfg.Audio.SilenceThresholdDBFS = defaultSilenceDBFS
	}
	if cfg.Audio.LivenessWindowMs == 0 {
		cfg.Audio.LivenessWindowMs = defaultLivenessWindowMs
	}
	if cfg.Buttons.DebounceMs == 0 {
		cfg.Buttons.DebounceMs = defaultDebounceMs
	}
	if cfg.Devices.BackoffMs == 0 {
		cfg.Devices.BackoffMs = defaultBackoffMs
	}
	if cfg.Devices.MaxReconnectAttempts == 0 {
		cfg.Devices.MaxReconnectAttempts = defaultReconnectAttempts
	}
	if cfg.NATS.AudioSubjectPrefix == "" {
		cfg.NATS.AudioSubjectPrefix = "AUDIO"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Rig topology. The MVP runs one actor and one avatar; the counts
	// must also match the configured devices so nothing is silently
	// ignored.
	if cfg.Show.Actors != 1 {
		errs = append(errs, fmt.Errorf("show.actors is %d; only 1 actor is supported", cfg.Show.Actors))
	}
	if cfg.Show.Avatars != 1 {
		errs = append(errs, fmt.Errorf("show.avatars is %d; only 1 avatar is supported", cfg.Show.Avatars))
	}
	if cfg.Show.Avatars > 0 && len(cfg.Buttons.Avatars) != cfg.Show.Avatars {
		errs = append(errs, fmt.Errorf("buttons.avatars has %d entries, want %d to match show.avatars", len(cfg.Buttons.Avatars), cfg.Show.Avatars))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("audio.queue_capacity %d must be positive", cfg.Audio.QueueCapacity))
	}
	if cfg.Audio.VADAggressiveness < 0 || cfg.Audio.VADAggressiveness > 3 {
		errs = append(errs, fmt.Errorf("audio.vad_aggressiveness %d is out of range [0, 3]", cfg.Audio.VADAggressiveness))
	}
	if cfg.Audio.SilenceThresholdDBFS > 0 {
		errs = append(errs, fmt.Errorf("audio.silence_threshold_dbfs %.1f must be negative (dBFS)", cfg.Audio.SilenceThresholdDBFS))
	}

	// Buttons: paths must be unique across all devices, keys must be in
	// the closed key set.
	if cfg.Buttons.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("buttons.debounce_ms %d is negative", cfg.Buttons.DebounceMs))
	}
	pathsSeen := make(map[string]string)
	checkPath := func(label, path string) {
		if path == "" {
			errs = append(errs, fmt.Errorf("%s.path is required", label))
			return
		}
		if prev, ok := pathsSeen[path]; ok {
			errs = append(errs, fmt.Errorf("%s.path %q duplicates %s", label, path, prev))
			return
		}
		pathsSeen[path] = label
	}
	checkKey := func(label, key string) {
		if key == "" {
			return
		}
		if _, err := buttons.KeyCodeFromName(key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
		}
	}

	checkPath("buttons.reset", cfg.Buttons.Reset.Path)
	if cfg.Buttons.Reset.Key == "" {
		errs = append(errs, fmt.Errorf("buttons.reset.key is required"))
	}
	checkKey("buttons.reset.key", cfg.Buttons.Reset.Key)
	for i, av := range cfg.Buttons.Avatars {
		label := fmt.Sprintf("buttons.avatars[%d]", i)
		checkPath(label, av.Path)
		if av.SpeakKey == "" {
			errs = append(errs, fmt.Errorf("%s.speak_key is required", label))
		}
		checkKey(label+".speak_key", av.SpeakKey)
		checkKey(label+".exit_key", av.ExitKey)
	}

	// NATS
	if cfg.NATS.URL == "" {
		errs = append(errs, fmt.Errorf("nats.url is required"))
	}
	if cfg.NATS.UseTLS {
		if cfg.NATS.CACert == "" {
			errs = append(errs, fmt.Errorf("nats.ca_cert is required when nats.use_tls is set"))
		}
		if cfg.NATS.ClientCert == "" {
			errs = append(errs, fmt.Errorf("nats.client_cert is required when nats.use_tls is set"))
		}
		if cfg.NATS.ClientKey == "" {
			errs = append(errs, fmt.Errorf("nats.client_key is required when nats.use_tls is set"))
		}
	}

	return errors.Join(errs...)
}

// KeyMap resolves the key bindings of the reset button. Validation has
// already rejected unknown names, so resolution failures only occur for
// configs that bypassed [Validate].
func (r ResetButtonConfig) KeyMap() (map[buttons.KeyCode]buttons.Action, error) {
	code, err := buttons.KeyCodeFromName(r.Key)
	if err != nil {
		return nil, err
	}
	return map[buttons.KeyCode]buttons.Action{code: buttons.ActionReset}, nil
}

// KeyMap resolves the key bindings of an avatar button.
func (a AvatarButtonConfig) KeyMap() (map[buttons.KeyCode]buttons.Action, error) {
	m := make(map[buttons.KeyCode]buttons.Action, 2)
	speak, err := buttons.KeyCodeFromName(a.SpeakKey)
	if err != nil {
		return nil, err
	}
	m[speak] = buttons.ActionSpeak
	if a.ExitKey != "" {
		exit, err := buttons.KeyCodeFromName(a.ExitKey)
		if err != nil {
			return nil, err
		}
		m[exit] = buttons.ActionExit
	}
	return m, nil
}
