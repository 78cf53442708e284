package audio

import "math"

// Denoiser is a soft noise gate with an adaptive floor estimate. It tracks
// the quietest recent frame energy as the noise floor and attenuates frames
// that sit close to it, leaving voiced frames untouched. Denoising only
// shapes the payload shipped downstream; silence and VAD decisions are
// always made on the raw signal first.
//
// A Denoiser is stateful (floor estimate) and must not be shared across
// streams.
type Denoiser struct {
	floor    float64 // running noise-floor estimate (normalised RMS)
	adaptUp  float64 // smoothing when the signal is above the floor
	adaptDn  float64 // smoothing when the signal falls below the floor
	openness float64 // gate ratio: frames below openness·floor are attenuated
}

// NewDenoiser creates a gate with a conservative default tuning.
func NewDenoiser() *Denoiser {
	return &Denoiser{
		floor:    0.002,
		adaptUp:  0.02, // floor creeps up slowly through speech
		adaptDn:  0.30, // and drops quickly in true silence
		openness: 2.5,
	}
}

// Process applies the gate to one frame and returns a new sample slice; the
// input is never modified. Frames well above the gate pass through with a
// copy, frames near the floor are attenuated proportionally.
func (d *Denoiser) Process(samples []int16) []int16 {
	out := make([]int16, len(samples))
	level := RMS(samples)

	// Update the floor estimate.
	if level < d.floor {
		d.floor += d.adaptDn * (level - d.floor)
	} else {
		d.floor += d.adaptUp * (level - d.floor)
	}
	if d.floor < 1e-5 {
		d.floor = 1e-5
	}

	gate := d.openness * d.floor
	if level >= gate {
		copy(out, samples)
		return out
	}

	// Below the gate: scale down smoothly rather than hard-muting, which
	// avoids pumping artifacts at segment edges.
	gain := level / gate
	gain *= gain
	for i, s := range samples {
		out[i] = int16(math.Round(float64(s) * gain))
	}
	return out
}

// Reset restores the initial floor estimate, as after a stream restart.
func (d *Denoiser) Reset() {
	d.floor = 0.002
}
