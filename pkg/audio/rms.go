package audio

import "math"

// minDBFS is the floor reported for an all-zero frame, standing in for
// negative infinity.
const minDBFS = -120.0

// RMS computes the root-mean-square level of int16 samples normalised to
// [-1, 1] (int16 full scale = 32768). An empty slice has level 0.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DBFS converts a normalised RMS level to decibels relative to full scale.
// Levels at or below zero clamp to the -120 dBFS floor.
func DBFS(rms float64) float64 {
	if rms <= 0 {
		return minDBFS
	}
	db := 20 * math.Log10(rms)
	if db < minDBFS {
		return minDBFS
	}
	return db
}
