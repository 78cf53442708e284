package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/stagelink/ingestd/pkg/audio"
)

// MalgoBackend implements [Backend] on top of miniaudio. One backend owns
// one malgo context; streams share it.
type MalgoBackend struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMalgoBackend initialises the miniaudio context. Call Close when done.
func NewMalgoBackend() (*MalgoBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("capture: init miniaudio context: %w", err)
	}
	return &MalgoBackend{ctx: ctx}, nil
}

// Close tears down the miniaudio context.
func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

// Devices enumerates capture devices.
func (b *MalgoBackend) Devices(_ context.Context) ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil, fmt.Errorf("capture: miniaudio context closed")
	}

	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("capture: enumerate devices: %w", err)
	}
	out := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, DeviceInfo{
			ID:        info.ID.String(),
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return out, nil
}

// Open acquires a capture stream. When the requested sample rate is zero
// miniaudio picks the device's native rate; the negotiated values are
// readable from the returned stream.
func (b *MalgoBackend) Open(_ context.Context, cfg StreamConfig, fn DataFunc) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil, fmt.Errorf("capture: miniaudio context closed")
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = toMalgoFormat(cfg.Format)
	devCfg.Capture.Channels = uint32(cfg.Channels)
	devCfg.SampleRate = uint32(cfg.SampleRate)
	devCfg.PeriodSizeInFrames = uint32(cfg.BlockSamples)
	if cfg.DeviceID != "" {
		id, err := lookupDeviceID(b.ctx, cfg.DeviceID)
		if err != nil {
			return nil, err
		}
		devCfg.Capture.DeviceID = id.Pointer()
	}

	s := &malgoStream{fn: fn, started: time.Now()}
	callbacks := malgo.DeviceCallbacks{
		Data: s.onData,
	}
	dev, err := malgo.InitDevice(b.ctx.Context, devCfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("capture: open device: %w", err)
	}
	s.dev = dev
	return s, nil
}

// lookupDeviceID re-enumerates to find the malgo.DeviceID matching the
// string form we handed out in Devices. malgo wants the binary ID back.
func lookupDeviceID(ctx *malgo.AllocatedContext, id string) (malgo.DeviceID, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("capture: enumerate devices: %w", err)
	}
	for _, info := range infos {
		if info.ID.String() == id {
			return info.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("capture: device id %q vanished between enumeration and open", id)
}

// malgoStream adapts a malgo device to [Stream].
type malgoStream struct {
	dev     *malgo.Device
	fn      DataFunc
	started time.Time
}

// onData is the miniaudio data callback. Keep it short: stamp, copy, hand
// off. The sample buffer is reused by miniaudio after we return.
func (s *malgoStream) onData(_, in []byte, _ uint32) {
	data := make([]byte, len(in))
	copy(data, in)
	s.fn(Chunk{
		Data:        data,
		CaptureTime: time.Since(s.started),
		WallTime:    time.Now(),
	})
}

func (s *malgoStream) Start() error {
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("capture: start stream: %w", err)
	}
	return nil
}

func (s *malgoStream) Stop() error {
	if err := s.dev.Stop(); err != nil {
		return fmt.Errorf("capture: stop stream: %w", err)
	}
	return nil
}

func (s *malgoStream) Close() error {
	s.dev.Uninit()
	return nil
}

func (s *malgoStream) SampleRate() int { return int(s.dev.SampleRate()) }

func (s *malgoStream) Format() audio.SampleFormat {
	return fromMalgoFormat(s.dev.CaptureFormat())
}

func (s *malgoStream) Channels() int { return int(s.dev.CaptureChannels()) }

func toMalgoFormat(f audio.SampleFormat) malgo.FormatType {
	switch f {
	case audio.FormatInt16:
		return malgo.FormatS16
	case audio.FormatInt32:
		return malgo.FormatS32
	case audio.FormatFloat32:
		return malgo.FormatF32
	case audio.FormatUint8:
		return malgo.FormatU8
	default:
		return malgo.FormatS16
	}
}

func fromMalgoFormat(f malgo.FormatType) audio.SampleFormat {
	switch f {
	case malgo.FormatS16:
		return audio.FormatInt16
	case malgo.FormatS32:
		return audio.FormatInt32
	case malgo.FormatF32:
		return audio.FormatFloat32
	case malgo.FormatU8:
		return audio.FormatUint8
	default:
		return audio.FormatInt16
	}
}
