package audio

import "time"

// SampleFormat identifies the PCM encoding of a frame's Data payload.
type SampleFormat int

const (
	FormatInt16 SampleFormat = iota
	FormatInt32
	FormatFloat32
	FormatInt8
	FormatUint8
)

// String returns the human-readable name of the sample format.
func (f SampleFormat) String() string {
	switch f {
	case FormatInt16:
		return "s16"
	case FormatInt32:
		return "s32"
	case FormatFloat32:
		return "f32"
	case FormatInt8:
		return "s8"
	case FormatUint8:
		return "u8"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the width of one sample in bytes, or 0 for an
// unknown format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatInt16:
		return 2
	case FormatInt32, FormatFloat32:
		return 4
	case FormatInt8, FormatUint8:
		return 1
	default:
		return 0
	}
}

// Frame is a single chunk of captured audio flowing through the pipeline.
// The capture stage constructs one Frame per clean hardware callback and
// never touches it again: downstream stages build new frames instead of
// mutating.
type Frame struct {
	// SourceID identifies the capture stage (actor microphone) that
	// produced this frame.
	SourceID int

	// Data is raw little-endian PCM in the encoding given by Format.
	Data []byte

	// Format is the PCM sample encoding of Data.
	Format SampleFormat

	// SampleRate is the rate the producing stage actually negotiated with
	// the hardware. When the device cannot run at the requested rate this
	// carries the device's own rate — never a silently coerced value.
	SampleRate float64

	// Channels is the interleaved channel count. The ingest rig is mono
	// but the value is carried so conversion stages need not assume.
	Channels int

	// CaptureTime is the monotonic timestamp of the hardware callback,
	// relative to the stage's start.
	CaptureTime time.Duration

	// WallTime is the wall-clock time the frame was captured.
	WallTime time.Time
}

// VADState is the carry state of the voice-activity segmenter. The state
// sequence delimits speech segments so downstream consumers never have to
// re-derive boundaries from per-frame speech flags.
type VADState int

const (
	// VADNA means no voice activity in this frame or its neighbours.
	VADNA VADState = iota

	// VADStart marks the first voiced frame of a segment.
	VADStart

	// VADContinue marks a voiced frame inside a segment.
	VADContinue

	// VADStop marks the first unvoiced frame after a segment.
	VADStop
)

// String returns the human-readable name of the segmentation state.
func (s VADState) String() string {
	switch s {
	case VADNA:
		return "na"
	case VADStart:
		return "start"
	case VADContinue:
		return "continue"
	case VADStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Next applies the segmentation transition rule for one frame's speech flag:
//
//	speech: NA|STOP → START, START|CONTINUE → CONTINUE
//	no speech: START|CONTINUE → STOP, STOP → NA, NA → NA
func (s VADState) Next(speech bool) VADState {
	if speech {
		switch s {
		case VADStart, VADContinue:
			return VADContinue
		default:
			return VADStart
		}
	}
	switch s {
	case VADStart, VADContinue:
		return VADStop
	default:
		return VADNA
	}
}

// TaggedFrame is the processing stage's output: the (possibly resampled and
// denoised) frame plus the annotations computed from the captured signal.
type TaggedFrame struct {
	Frame

	// IsDenoised reports whether the Data payload went through the noise
	// reducer. The RMS/VAD annotations below always describe the signal
	// before denoising.
	IsDenoised bool

	// IsSilence reports whether the pre-denoise RMS fell below the
	// configured silence threshold.
	IsSilence bool

	// IsVoice is the per-frame speech classification.
	IsVoice bool

	// State is the segmentation state after applying this frame.
	State VADState

	// RMSdBFS is the pre-denoise signal level in dBFS (≤ 0).
	RMSdBFS float64

	// Seq is assigned by the processing stage: strictly increasing per
	// stage instance, starting at 0, never reused.
	Seq uint64
}

// Int16Samples decodes the frame's Data into int16 samples, converting from
// the source format when necessary. Unknown formats yield nil.
func (f Frame) Int16Samples() []int16 {
	return DecodeInt16(f.Data, f.Format)
}
