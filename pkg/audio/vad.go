package audio

// VAD is an energy-based speech/non-speech classifier with hysteresis:
// separate enter and exit thresholds plus consecutive-frame requirements
// keep the decision from flickering on breaths and room tone.
//
// The aggressiveness level (0–3) selects how eagerly the detector declares
// speech: 0 is the most permissive (almost anything above the noise floor
// counts), 3 requires a strong, sustained signal. A VAD is stateful and
// must not be shared across streams.
type VAD struct {
	enterRMS   float64 // level that can start speech
	exitRMS    float64 // level below which speech can end
	enterCount int     // consecutive loud frames to enter
	hangover   int     // consecutive quiet frames to exit

	inSpeech bool
	loud     int
	quiet    int
}

// vadPreset holds the tuning for one aggressiveness level.
type vadPreset struct {
	enterRMS   float64
	exitRMS    float64
	enterCount int
	hangover   int
}

// Presets for 10–30 ms frames. Exit thresholds sit below the entry
// thresholds so a speaker trailing off does not chop the segment.
var vadPresets = [4]vadPreset{
	{enterRMS: 0.010, exitRMS: 0.005, enterCount: 1, hangover: 30},
	{enterRMS: 0.015, exitRMS: 0.008, enterCount: 2, hangover: 25},
	{enterRMS: 0.022, exitRMS: 0.012, enterCount: 3, hangover: 18},
	{enterRMS: 0.032, exitRMS: 0.018, enterCount: 4, hangover: 12},
}

// NewVAD creates a detector for the given aggressiveness level. Levels
// outside 0–3 are clamped.
func NewVAD(aggressiveness int) *VAD {
	if aggressiveness < 0 {
		aggressiveness = 0
	}
	if aggressiveness > 3 {
		aggressiveness = 3
	}
	p := vadPresets[aggressiveness]
	return &VAD{
		enterRMS:   p.enterRMS,
		exitRMS:    p.exitRMS,
		enterCount: p.enterCount,
		hangover:   p.hangover,
	}
}

// IsSpeech classifies one frame of int16 samples and updates the carry
// state. The decision is made on the raw captured signal; run it before
// any denoising.
func (v *VAD) IsSpeech(samples []int16) bool {
	level := RMS(samples)

	if v.inSpeech {
		if level < v.exitRMS {
			v.quiet++
			v.loud = 0
			if v.quiet >= v.hangover {
				v.inSpeech = false
				v.quiet = 0
			}
		} else {
			v.quiet = 0
		}
		return v.inSpeech
	}

	if level >= v.enterRMS {
		v.loud++
		v.quiet = 0
		if v.loud >= v.enterCount {
			v.inSpeech = true
			v.loud = 0
		}
	} else {
		v.loud = 0
	}
	return v.inSpeech
}

// Reset clears all carry state, as after a stream restart.
func (v *VAD) Reset() {
	v.inSpeech = false
	v.loud = 0
	v.quiet = 0
}
