package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"layeh.com/gopus"

	"github.com/stagelink/ingestd/internal/queue"
	"github.com/stagelink/ingestd/pkg/audio"
)

// The transport carries 48 kHz mono Opus at 20 ms frame size.
const (
	opusSampleRate   = 48000
	opusChannels     = 1
	opusFrameMs      = 20
	opusFrameSamples = opusSampleRate * opusFrameMs / 1000 // 960
)

// AudioPublisherConfig parameterises an [AudioPublisher].
type AudioPublisherConfig struct {
	// Subject is the per-actor audio subject.
	Subject string

	// StreamID labels this capture run in logs. Defaults to a fresh
	// UUID per process start.
	StreamID string

	// Queue supplies the processed frames.
	Queue *queue.SlidingWindow[audio.TaggedFrame]

	// Publisher receives the Opus packets.
	Publisher Publisher

	// OnPublish, when non-nil, is invoked once per published packet.
	OnPublish func()
}

// AudioPublisher consumes processed frames, regroups them into 20 ms
// packets, Opus-encodes and publishes them. Like the button drain it is
// fire and forget; encode or publish failures drop the packet.
type AudioPublisher struct {
	cfg     AudioPublisherConfig
	enc     *gopus.Encoder
	pending []int16
}

// NewAudioPublisher creates the audio drain with a fresh encoder.
func NewAudioPublisher(cfg AudioPublisherConfig) (*AudioPublisher, error) {
	if cfg.StreamID == "" {
		cfg.StreamID = uuid.NewString()
	}
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("publish: create opus encoder: %w", err)
	}
	return &AudioPublisher{
		cfg:     cfg,
		enc:     enc,
		pending: make([]int16, 0, opusFrameSamples*2),
	}, nil
}

// Run drains the frame queue until the context ends or the queue shuts
// down. Queue shutdown is the clean termination signal, reported as nil.
func (p *AudioPublisher) Run(ctx context.Context) error {
	slog.Info("audio publisher started",
		"subject", p.cfg.Subject, "stream_id", p.cfg.StreamID)
	for {
		frame, err := p.cfg.Queue.Get(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrShutdown) {
				return nil
			}
			return fmt.Errorf("publish: audio drain: %w", err)
		}
		p.consume(frame)
	}
}

// consume folds one frame into the pending sample buffer and flushes
// every complete 20 ms packet.
func (p *AudioPublisher) consume(frame audio.TaggedFrame) {
	if int(frame.SampleRate) != opusSampleRate {
		slog.Warn("audio frame at wrong rate dropped",
			"stream_id", p.cfg.StreamID, "rate", frame.SampleRate)
		return
	}
	samples := frame.Int16Samples()
	if samples == nil {
		slog.Warn("undecodable audio frame dropped",
			"stream_id", p.cfg.StreamID, "format", frame.Format)
		return
	}
	p.pending = append(p.pending, samples...)

	for len(p.pending) >= opusFrameSamples {
		packet := p.pending[:opusFrameSamples]
		opusData, err := p.enc.Encode(packet, opusFrameSamples, opusFrameSamples*2)
		if err != nil {
			slog.Error("opus encode failed, packet dropped",
				"stream_id", p.cfg.StreamID, "err", err)
		} else if err := p.cfg.Publisher.Publish(p.cfg.Subject, opusData); err != nil {
			slog.Error("audio publish failed, packet dropped",
				"subject", p.cfg.Subject, "err", err)
		} else if p.cfg.OnPublish != nil {
			p.cfg.OnPublish()
		}
		p.pending = p.pending[:copy(p.pending, p.pending[opusFrameSamples:])]
	}
}
