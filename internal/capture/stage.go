package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stagelink/ingestd/internal/device"
	"github.com/stagelink/ingestd/internal/queue"
	"github.com/stagelink/ingestd/pkg/audio"
)

const (
	// xrunBurstThreshold is the consecutive xrun count that triggers a
	// controlled stream restart.
	xrunBurstThreshold = 5

	// supervisorTick is the heartbeat poll interval.
	supervisorTick = 500 * time.Millisecond

	// defaultLivenessWindow is how stale the heartbeat may get before the
	// stream is declared stalled.
	defaultLivenessWindow = 2 * time.Second
)

// StageConfig parameterises a capture [Stage].
type StageConfig struct {
	// Name labels the stage in logs.
	Name string

	// SourceID is stamped on every emitted frame.
	SourceID int

	// DeviceName is the substring used to select the capture device.
	// Empty selects the system default.
	DeviceName string

	// SampleRate is the preferred rate in Hz. When the device cannot run
	// at it the stage falls back to the device's native rate and frames
	// carry that rate instead.
	SampleRate int

	// Channels is the requested channel count. Zero means mono.
	Channels int

	// BlockSamples is the preferred callback chunk size in frames.
	BlockSamples int

	// LivenessWindow is the maximum heartbeat age before the stream is
	// considered stalled. Zero uses the default.
	LivenessWindow time.Duration

	// Queue receives the captured frames.
	Queue *queue.SlidingWindow[audio.Frame]

	// OnXrun, when non-nil, is invoked once per observed xrun. Must not
	// block; it runs in the capture callback.
	OnXrun func()
}

// Stage is the microphone capture stage. It implements [device.Capability]
// and is driven by a [device.Session]: Open discovers and acquires the
// device, Run streams until the context ends or the stream needs a
// restart, Close releases the hardware.
type Stage struct {
	cfg     StageConfig
	backend Backend
	session *device.Session

	stream  Stream
	rate    int
	format  audio.SampleFormat
	chans   int
	resamp  bool
	restart chan error
}

// NewStage creates a capture stage over the given backend. Bind must be
// called before the owning session runs it.
func NewStage(cfg StageConfig, backend Backend) *Stage {
	if cfg.LivenessWindow <= 0 {
		cfg.LivenessWindow = defaultLivenessWindow
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Stage{
		cfg:     cfg,
		backend: backend,
		restart: make(chan error, 1),
	}
}

// Bind attaches the supervising session. The stage reports heartbeats and
// errors through it.
func (s *Stage) Bind(sess *device.Session) { s.session = sess }

// ResampleRequired reports whether the device runs at a different rate
// than requested. Meaningful only while the stream is open.
func (s *Stage) ResampleRequired() bool { return s.resamp }

// SampleRate returns the negotiated stream rate. Meaningful only while
// the stream is open.
func (s *Stage) SampleRate() int { return s.rate }

// Open discovers the configured device and acquires a stream at the
// preferred rate, falling back to the device's native rate when the
// hardware refuses.
func (s *Stage) Open(ctx context.Context) error {
	devices, err := s.backend.Devices(ctx)
	if err != nil {
		return fmt.Errorf("capture %s: %w", s.cfg.Name, err)
	}
	dev, err := FindDevice(devices, s.cfg.DeviceName)
	if err != nil {
		return fmt.Errorf("capture %s: %q: %w", s.cfg.Name, s.cfg.DeviceName, err)
	}

	streamCfg := StreamConfig{
		DeviceID:     dev.ID,
		SampleRate:   s.cfg.SampleRate,
		Format:       audio.FormatInt16,
		Channels:     s.cfg.Channels,
		BlockSamples: s.cfg.BlockSamples,
	}
	stream, err := s.backend.Open(ctx, streamCfg, s.onChunk)
	if err != nil && s.cfg.SampleRate != 0 {
		slog.Warn("preferred sample rate refused, retrying at device default",
			"stage", s.cfg.Name, "device", dev.Name, "rate", s.cfg.SampleRate, "err", err)
		streamCfg.SampleRate = 0
		stream, err = s.backend.Open(ctx, streamCfg, s.onChunk)
	}
	if err != nil {
		return fmt.Errorf("capture %s: open %q: %w", s.cfg.Name, dev.Name, err)
	}

	s.stream = stream
	s.rate = stream.SampleRate()
	s.format = stream.Format()
	s.chans = stream.Channels()
	s.resamp = s.cfg.SampleRate != 0 && s.rate != s.cfg.SampleRate

	// Drain any restart signal left over from a previous stream.
	select {
	case <-s.restart:
	default:
	}

	if s.resamp {
		slog.Info("capture stream open, resample required",
			"stage", s.cfg.Name, "device", dev.Name,
			"requested_rate", s.cfg.SampleRate, "device_rate", s.rate)
	} else {
		slog.Info("capture stream open",
			"stage", s.cfg.Name, "device", dev.Name, "rate", s.rate)
	}
	return nil
}

// Run starts the stream and supervises it: a stalled heartbeat or an xrun
// burst ends the run with a restart signal so the session reopens the
// device without spending its reconnect budget.
func (s *Stage) Run(ctx context.Context) error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("capture %s: %w", s.cfg.Name, err)
	}
	defer func() {
		if err := s.stream.Stop(); err != nil {
			slog.Warn("capture stream stop failed", "stage", s.cfg.Name, "err", err)
		}
	}()

	tick := time.NewTicker(supervisorTick)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-s.restart:
			return err

		case <-tick.C:
			if age := s.session.HeartbeatAge(); age > s.cfg.LivenessWindow {
				return fmt.Errorf("capture %s: no data for %s: %w",
					s.cfg.Name, age.Round(time.Millisecond), device.ErrRestart)
			}
		}
	}
}

// Close releases the device handle.
func (s *Stage) Close() error {
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	return err
}

// onChunk is the capture callback. Xruns and empty deliveries count
// against the burst threshold; clean chunks refresh the heartbeat and
// become frames in the stage queue.
func (s *Stage) onChunk(c Chunk) {
	if c.Xrun || len(c.Data) == 0 {
		if s.cfg.OnXrun != nil {
			s.cfg.OnXrun()
		}
		if n := s.session.RecordError(); n >= xrunBurstThreshold {
			select {
			case s.restart <- fmt.Errorf("capture %s: %d consecutive xruns: %w",
				s.cfg.Name, n, device.ErrRestart):
			default:
			}
		}
		return
	}

	s.session.Heartbeat()
	frame := audio.Frame{
		SourceID:    s.cfg.SourceID,
		Data:        c.Data,
		Format:      s.format,
		SampleRate:  float64(s.rate),
		Channels:    s.chans,
		CaptureTime: c.CaptureTime,
		WallTime:    c.WallTime,
	}
	if err := s.cfg.Queue.Put(frame); err != nil {
		// Shutdown race during teardown; the frame is lost on purpose.
		slog.Debug("capture frame dropped", "stage", s.cfg.Name, "err", err)
	}
}
