package audio

import "math"

// tapsPerPhase is the FIR length per polyphase branch. 24 taps gives
// comfortably more than 60 dB of stopband attenuation with a Hamming
// window, which is plenty for speech.
const tapsPerPhase = 24

// Resampler converts int16 PCM between two fixed sample rates using a
// rational polyphase FIR. The up/down factors are the target and source
// rates divided by their GCD, so common conversions stay cheap
// (16000→48000 is a pure 1:3 upsample, not a 2000-phase monster).
//
// A Resampler carries no inter-call state; it is safe for concurrent use.
type Resampler struct {
	srcRate int
	dstRate int
	up      int
	down    int
	// filter holds the prototype lowpass, length up*tapsPerPhase, with
	// gain up baked in. Phase p uses coefficients filter[p], filter[p+up], …
	filter []float64
}

// NewResampler creates a resampler for the given rate pair. Both rates
// must be positive. When the rates are equal the resampler passes data
// through unchanged.
func NewResampler(srcRate, dstRate int) *Resampler {
	r := &Resampler{srcRate: srcRate, dstRate: dstRate}
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 {
		return r
	}

	g := gcd(srcRate, dstRate)
	r.up = dstRate / g
	r.down = srcRate / g
	r.filter = lowpassFIR(r.up, r.down)
	return r
}

// Process resamples src from the source rate to the target rate. The output
// length is ceil(len(src)·up/down). Results are rounded and clipped to the
// int16 range. If the rates are equal src is returned unchanged.
func (r *Resampler) Process(src []int16) []int16 {
	if r.up == 0 || len(src) == 0 {
		return src
	}

	outLen := (len(src)*r.up + r.down - 1) / r.down
	out := make([]int16, outLen)
	half := (len(r.filter) - 1) / 2

	for n := 0; n < outLen; n++ {
		// Position of output sample n in the upsampled domain, centred
		// on the filter's group delay.
		t := n*r.down + half
		phase := t % r.up
		idx := t / r.up

		var acc float64
		for k := phase; k < len(r.filter); k += r.up {
			j := idx - k/r.up
			if j < 0 {
				break
			}
			if j >= len(src) {
				continue
			}
			acc += r.filter[k] * float64(src[j])
		}
		out[n] = clampInt16(acc)
	}
	return out
}

// Ratio returns the reduced up/down conversion factors. Both are 1 when no
// conversion is needed.
func (r *Resampler) Ratio() (up, down int) {
	if r.up == 0 {
		return 1, 1
	}
	return r.up, r.down
}

// lowpassFIR designs the windowed-sinc prototype filter for an up/down
// rational converter: cutoff at the lower of the two Nyquist limits, Hamming
// window, passband gain equal to up (compensating the zero-stuffing loss).
func lowpassFIR(up, down int) []float64 {
	length := up * tapsPerPhase
	if length%2 == 0 {
		length++ // odd length keeps the filter symmetric about one tap
	}
	half := (length - 1) / 2

	cutoff := 1.0 / float64(max(up, down))
	h := make([]float64, length)
	var sum float64
	for i := range h {
		m := float64(i - half)
		h[i] = sinc(cutoff*m) * hamming(i, length)
		sum += h[i]
	}
	// Normalise DC gain to up.
	scale := float64(up) / sum
	for i := range h {
		h[i] *= scale
	}
	return h
}

// sinc is the normalised sinc function sin(πx)/(πx).
func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// hamming evaluates the Hamming window at position i of an n-tap filter.
func hamming(i, n int) float64 {
	return 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
