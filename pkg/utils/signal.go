// Package utils holds deterministic signal generators and spectrum helpers
// shared by the analysis and audio tests.
package utils

import "math"

// GenerateSineWave returns size samples of a sine at frequency Hz scaled by amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * amplitude)
	}
	return buffer
}

// GenerateBinTone returns a cosine that lands exactly on FFT bin `bin` of a
// transform of length size. The magnitude at that bin is amplitude*size/2.
func GenerateBinTone(size, bin int, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = float32(amplitude * math.Cos(2*math.Pi*float64(bin)*float64(i)/float64(size)))
	}
	return buffer
}

// MixInto adds src into dst sample by sample up to the shorter length.
func MixInto(dst, src []float32) {
	for i := range min(len(dst), len(src)) {
		dst[i] += src[i]
	}
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
