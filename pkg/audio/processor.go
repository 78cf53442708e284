package audio

import "fmt"

// ProcessorConfig tunes a [Processor].
type ProcessorConfig struct {
	// TargetRate is the sample rate all emitted frames are converted to.
	TargetRate int

	// SilenceThreshold is the normalised RMS level below which a frame is
	// tagged silent.
	SilenceThreshold float64

	// VADAggressiveness selects the detector preset (0–3).
	VADAggressiveness int

	// Denoise enables the noise gate on the emitted payload. Detection
	// always runs on the raw signal regardless.
	Denoise bool
}

// Processor is the single-consumer enrichment stage between capture and
// transport. For every raw frame it converts the sample rate, measures the
// signal, runs voice-activity segmentation, and optionally denoises —
// in that order, because the detectors must see the true captured signal
// and the denoiser is only a transport nicety.
//
// A Processor owns VAD and sequence state and must be driven by exactly
// one goroutine.
type Processor struct {
	cfg      ProcessorConfig
	vad      *VAD
	denoiser *Denoiser
	state    VADState
	nextSeq  uint64

	// resamplers caches one converter per observed input rate. Devices
	// that fell back to their default rate make this more than one entry.
	resamplers map[int]*Resampler
}

// NewProcessor creates a processing stage. The first emitted frame has
// sequence number 0.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.TargetRate <= 0 {
		return nil, fmt.Errorf("audio: target rate must be positive, got %d", cfg.TargetRate)
	}
	if cfg.SilenceThreshold <= 0 {
		return nil, fmt.Errorf("audio: silence threshold must be positive, got %g", cfg.SilenceThreshold)
	}
	p := &Processor{
		cfg:        cfg,
		vad:        NewVAD(cfg.VADAggressiveness),
		state:      VADNA,
		resamplers: make(map[int]*Resampler),
	}
	if cfg.Denoise {
		p.denoiser = NewDenoiser()
	}
	return p, nil
}

// Process enriches one raw frame into a TaggedFrame. The input frame is
// never modified.
func (p *Processor) Process(in Frame) (TaggedFrame, error) {
	samples := in.Int16Samples()
	if samples == nil {
		return TaggedFrame{}, fmt.Errorf("audio: frame from source %d has undecodable %s payload (%d bytes)",
			in.SourceID, in.Format, len(in.Data))
	}

	// 1. Rate conversion.
	srcRate := int(in.SampleRate)
	if srcRate != p.cfg.TargetRate {
		r, ok := p.resamplers[srcRate]
		if !ok {
			r = NewResampler(srcRate, p.cfg.TargetRate)
			p.resamplers[srcRate] = r
		}
		samples = r.Process(samples)
	}

	// 2. Level measurement on the pre-denoise signal.
	rms := RMS(samples)
	silent := rms < p.cfg.SilenceThreshold

	// 3. Voice-activity segmentation, also pre-denoise.
	speech := p.vad.IsSpeech(samples)
	p.state = p.state.Next(speech)

	// 4. Optional denoise, last, so it can never bias the decisions above.
	denoised := false
	if p.denoiser != nil {
		samples = p.denoiser.Process(samples)
		denoised = true
	}

	out := TaggedFrame{
		Frame: Frame{
			SourceID:    in.SourceID,
			Data:        EncodeInt16(samples),
			Format:      FormatInt16,
			SampleRate:  float64(p.cfg.TargetRate),
			Channels:    in.Channels,
			CaptureTime: in.CaptureTime,
			WallTime:    in.WallTime,
		},
		IsDenoised: denoised,
		IsSilence:  silent,
		IsVoice:    speech,
		State:      p.state,
		RMSdBFS:    DBFS(rms),
		Seq:        p.nextSeq,
	}
	p.nextSeq++
	return out, nil
}

// Reset clears VAD and denoiser carry state after a capture restart. The
// sequence counter is not reset; sequence numbers are never reused within
// one stage instance.
func (p *Processor) Reset() {
	p.vad.Reset()
	p.state = VADNA
	if p.denoiser != nil {
		p.denoiser.Reset()
	}
}
