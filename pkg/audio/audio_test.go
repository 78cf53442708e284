package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stagelink/ingestd/pkg/audio"
)

// encodeFloat32 packs float32 samples as little-endian bytes.
func encodeFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// sine generates n samples of a sine tone at freq Hz and the given rate,
// scaled to amp of int16 full scale.
func sine(n int, freq, rate, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * 32767 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return out
}

// estimateFreq estimates the dominant frequency of a tone by counting
// rising zero crossings over the middle of the buffer, avoiding filter
// edge effects.
func estimateFreq(samples []int16, rate float64) float64 {
	lo, hi := len(samples)/4, 3*len(samples)/4
	crossings := 0
	first, last := -1, -1
	for i := lo + 1; i < hi; i++ {
		if samples[i-1] < 0 && samples[i] >= 0 {
			crossings++
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if crossings < 2 {
		return 0
	}
	return float64(crossings-1) * rate / float64(last-first)
}

func TestVADStateTransitions(t *testing.T) {
	// The canonical segmentation sequence: one utterance bounded by
	// silence.
	flags := []bool{false, true, true, false, false}
	want := []audio.VADState{audio.VADNA, audio.VADStart, audio.VADContinue, audio.VADStop, audio.VADNA}

	state := audio.VADNA
	for i, speech := range flags {
		state = state.Next(speech)
		if state != want[i] {
			t.Errorf("frame %d (speech=%v): state = %v, want %v", i, speech, state, want[i])
		}
	}
}

func TestVADStateNeverSkipsStop(t *testing.T) {
	// START must never jump straight back to START or down to NA; the
	// only exits are CONTINUE (speech) and STOP (no speech).
	if got := audio.VADStart.Next(true); got != audio.VADContinue {
		t.Errorf("START+speech = %v, want CONTINUE", got)
	}
	if got := audio.VADStart.Next(false); got != audio.VADStop {
		t.Errorf("START+silence = %v, want STOP", got)
	}
	if got := audio.VADStop.Next(true); got != audio.VADStart {
		t.Errorf("STOP+speech = %v, want START", got)
	}
	if got := audio.VADStop.Next(false); got != audio.VADNA {
		t.Errorf("STOP+silence = %v, want NA", got)
	}
}

func TestResampleRatio(t *testing.T) {
	r := audio.NewResampler(16000, 48000)
	up, down := r.Ratio()
	if up != 3 || down != 1 {
		t.Errorf("Ratio(16000→48000) = %d/%d, want 3/1", up, down)
	}

	r = audio.NewResampler(44100, 48000)
	up, down = r.Ratio()
	if up != 160 || down != 147 {
		t.Errorf("Ratio(44100→48000) = %d/%d, want 160/147", up, down)
	}
}

func TestResampleRoundTripSine(t *testing.T) {
	const (
		freq    = 1000.0
		lowRate = 16000
		hiRate  = 48000
	)
	src := sine(1600, freq, lowRate, 0.5) // 100 ms

	upsampled := audio.NewResampler(lowRate, hiRate).Process(src)
	if want := len(src) * 3; abs(len(upsampled)-want) > 1 {
		t.Fatalf("upsampled length = %d, want %d±1", len(upsampled), want)
	}

	back := audio.NewResampler(hiRate, lowRate).Process(upsampled)
	if abs(len(back)-len(src)) > 1 {
		t.Fatalf("round-trip length = %d, want %d±1", len(back), len(src))
	}

	if got := estimateFreq(upsampled, hiRate); math.Abs(got-freq) > freq*0.02 {
		t.Errorf("upsampled frequency = %.1f Hz, want %.1f ±2%%", got, freq)
	}
	if got := estimateFreq(back, lowRate); math.Abs(got-freq) > freq*0.02 {
		t.Errorf("round-trip frequency = %.1f Hz, want %.1f ±2%%", got, freq)
	}
}

func TestResampleSameRatePassthrough(t *testing.T) {
	src := sine(160, 440, 16000, 0.3)
	out := audio.NewResampler(16000, 16000).Process(src)
	if len(out) != len(src) {
		t.Fatalf("length changed on passthrough: %d → %d", len(src), len(out))
	}
	for i := range src {
		if out[i] != src[i] {
			t.Fatalf("sample %d changed on passthrough", i)
		}
	}
}

func TestRMSAndDBFS(t *testing.T) {
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %g, want 0", got)
	}
	// A full-scale square wave has RMS 1.0 → 0 dBFS.
	square := []int16{32767, -32768, 32767, -32768}
	rms := audio.RMS(square)
	if math.Abs(rms-1.0) > 0.001 {
		t.Errorf("RMS(full-scale square) = %g, want ~1.0", rms)
	}
	if db := audio.DBFS(rms); math.Abs(db) > 0.01 {
		t.Errorf("DBFS(1.0) = %g, want ~0", db)
	}
	if db := audio.DBFS(0); db != -120 {
		t.Errorf("DBFS(0) = %g, want -120", db)
	}
}

func TestVADDetectsToneAndIgnoresSilence(t *testing.T) {
	v := audio.NewVAD(1)
	loud := sine(320, 300, 16000, 0.4)
	quiet := make([]int16, 320)

	// Feed enough loud frames to satisfy the entry requirement.
	var speech bool
	for i := 0; i < 5; i++ {
		speech = v.IsSpeech(loud)
	}
	if !speech {
		t.Error("sustained tone not classified as speech")
	}

	v.Reset()
	for i := 0; i < 5; i++ {
		speech = v.IsSpeech(quiet)
	}
	if speech {
		t.Error("silence classified as speech")
	}
}

func TestDecodeInt16Formats(t *testing.T) {
	// float32 1.0 → 32767, -1.0 → -32767.
	f32 := encodeFloat32([]float32{1.0, -1.0, 0})
	got := audio.DecodeInt16(f32, audio.FormatFloat32)
	want := []int16{32767, -32767, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("float32 sample %d = %d, want %d", i, got[i], want[i])
		}
	}

	// int16 passthrough.
	raw := audio.EncodeInt16([]int16{100, -100})
	got = audio.DecodeInt16(raw, audio.FormatInt16)
	if got[0] != 100 || got[1] != -100 {
		t.Errorf("int16 round trip = %v", got)
	}

	// Misaligned data yields nil.
	if audio.DecodeInt16([]byte{1}, audio.FormatInt16) != nil {
		t.Error("misaligned int16 data should decode to nil")
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
