package audio

import (
	"encoding/binary"
	"math"
)

// DecodeInt16 converts raw little-endian PCM data in the given format to
// int16 samples. Wider formats are truncated toward int16 full scale,
// narrower formats are scaled up. Returns nil for unknown formats or data
// that is not a whole number of samples.
func DecodeInt16(data []byte, format SampleFormat) []int16 {
	width := format.BytesPerSample()
	if width == 0 || len(data)%width != 0 {
		return nil
	}
	n := len(data) / width
	out := make([]int16, n)

	switch format {
	case FormatInt16:
		for i := 0; i < n; i++ {
			out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
	case FormatInt32:
		for i := 0; i < n; i++ {
			v := int32(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = int16(v >> 16)
		}
	case FormatFloat32:
		for i := 0; i < n; i++ {
			f := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = clampInt16(float64(f) * 32767)
		}
	case FormatInt8:
		for i, b := range data {
			out[i] = int16(int8(b)) << 8
		}
	case FormatUint8:
		for i, b := range data {
			out[i] = (int16(b) - 128) << 8
		}
	}
	return out
}

// EncodeInt16 converts int16 samples to little-endian bytes.
func EncodeInt16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// clampInt16 rounds v and clips it to the int16 range.
func clampInt16(v float64) int16 {
	r := math.Round(v)
	if r > math.MaxInt16 {
		return math.MaxInt16
	}
	if r < math.MinInt16 {
		return math.MinInt16
	}
	return int16(r)
}
