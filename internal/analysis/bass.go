// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"bassmonitor/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Intensity bounds for a gated-on result.
const (
	MinIntensity = 0.05
	MaxIntensity = 1.0
)

// Band defines what counts as bass: a frequency range in Hz and the share of
// the loudest bin the in-band peak must reach.
type Band struct {
	LowFreq    float64
	HighFreq   float64
	BassCutoff float64
}

// Validate checks 0 <= low <= high <= sampleRate/2 and cutoff in [0,1].
func (b Band) Validate(sampleRate float64) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	if b.LowFreq < 0 || b.LowFreq > b.HighFreq || b.HighFreq > sampleRate/2 {
		return fmt.Errorf("band %.1f-%.1f Hz outside 0-%.1f Hz", b.LowFreq, b.HighFreq, sampleRate/2)
	}
	if b.BassCutoff < 0 || b.BassCutoff > 1 {
		return fmt.Errorf("bass cutoff must be within [0,1], got %f", b.BassCutoff)
	}
	return nil
}

// Extractor reduces a full Window to a single intensity value. It owns the
// FFT plan and all scratch buffers, so Extract never allocates.
type Extractor struct {
	fft        *fourier.CmplxFFT
	capacity   int
	coeffs     []float64 // nil for a rectangular window
	magnitudes []float64 // bins 0..capacity/2
}

// NewExtractor plans a transform for windows of the given capacity.
func NewExtractor(capacity int, windowType WindowFunc) (*Extractor, error) {
	if capacity < 2 || !bitint.IsPowerOfTwo(capacity) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", capacity)
	}
	return &Extractor{
		fft:        fourier.NewCmplxFFT(capacity),
		capacity:   capacity,
		coeffs:     windowCoefficients(capacity, windowType),
		magnitudes: make([]float64, capacity/2+1),
	}, nil
}

// Extract transforms the window in place, maps band onto bins and returns the
// intensity. The window cursor is reset to zero whatever the outcome.
func (e *Extractor) Extract(w *Window, band Band, sampleRate float64) float32 {
	slots := w.Slots()
	w.Reset()

	if len(slots) != e.capacity || sampleRate <= 0 {
		return 0
	}

	if e.coeffs != nil {
		for i := range slots {
			slots[i] *= complex(e.coeffs[i], 0)
		}
	}

	e.fft.Coefficients(slots, slots)
	for i := range e.magnitudes {
		e.magnitudes[i] = cmplx.Abs(slots[i])
	}

	lowBin := BinIndex(band.LowFreq, sampleRate, e.capacity)
	highBin := BinIndex(band.HighFreq, sampleRate, e.capacity)
	return BassIntensity(e.magnitudes, lowBin, highBin, band.BassCutoff)
}

// Magnitudes returns the spectrum computed by the last Extract. The slice is
// reused on every call.
func (e *Extractor) Magnitudes() []float64 { return e.magnitudes }

// BinIndex maps a frequency to the nearest bin of a transform of size capacity.
func BinIndex(freq, sampleRate float64, capacity int) int {
	return int(math.Round(freq / sampleRate * float64(capacity)))
}

// BassIntensity encodes where the strongest in-band bin sits inside
// [lowBin, highBin) as 0.05..1.0. magnitudes holds bins 0..N/2 and bin 0 is
// ignored for the global maximum. The result is 0 when the band is empty, the
// spectrum is silent, no in-band bin is above zero, or the in-band peak is
// weaker than cutoff times the global peak. A ratio equal to cutoff passes.
func BassIntensity(magnitudes []float64, lowBin, highBin int, cutoff float64) float32 {
	width := highBin - lowBin
	if width <= 0 {
		return 0
	}

	var maxAmplitude float64
	for i := 1; i < len(magnitudes); i++ {
		if magnitudes[i] > maxAmplitude {
			maxAmplitude = magnitudes[i]
		}
	}
	if maxAmplitude == 0 {
		return 0
	}

	lo := max(lowBin, 0)
	hi := min(highBin, len(magnitudes))
	bassIndex := -1
	var bassAmplitude float64
	for i := lo; i < hi; i++ {
		if magnitudes[i] > bassAmplitude {
			bassAmplitude = magnitudes[i]
			bassIndex = i
		}
	}

	if bassIndex < lowBin || bassAmplitude/maxAmplitude < cutoff {
		return 0
	}

	return float32(MinIntensity + (MaxIntensity-MinIntensity)*float64(bassIndex-lowBin)/float64(width))
}
