package audio

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// firstUsableBin skips DC (bin 0) and the near-DC leakage of the biased input (bin 1).
const firstUsableBin = 2

// SpectrumEstimator computes Hamming-windowed magnitude spectra. All buffers
// are allocated once and reused every cycle.
type SpectrumEstimator struct {
	size       int
	fft        *fourier.FFT
	work       []float64
	coeffs     []complex128
	magnitudes []float64
}

func NewSpectrumEstimator(size int) (*SpectrumEstimator, error) {
	if size < 4 || size&(size-1) != 0 {
		return nil, fmt.Errorf("%w: transform size %d is not a power of two", ErrInvalidConfig, size)
	}
	return &SpectrumEstimator{
		size:       size,
		fft:        fourier.NewFFT(size),
		work:       make([]float64, size),
		coeffs:     make([]complex128, size/2+1),
		magnitudes: make([]float64, size/2),
	}, nil
}

// Transform returns the magnitudes of bins 0..N/2-1. The returned slice is
// owned by the estimator and overwritten by the next call.
func (e *SpectrumEstimator) Transform(burst []float64) []float64 {
	copy(e.work, burst)
	window.Hamming(e.work)
	e.coeffs = e.fft.Coefficients(e.coeffs, e.work)

	for i := range e.magnitudes {
		e.magnitudes[i] = cmplx.Abs(e.coeffs[i])
	}
	return e.magnitudes
}

// BinWidth is the frequency resolution in Hz for the given sample rate.
func (e *SpectrumEstimator) BinWidth(sampleRate int) float64 {
	return float64(sampleRate) / float64(e.size)
}

// SpectralVolume is the RMS magnitude over the usable bins scaled by fullScale
// and clamped to [0,1].
func SpectralVolume(magnitudes []float64, fullScale float64) float64 {
	if len(magnitudes) <= firstUsableBin || fullScale <= 0 {
		return 0
	}
	var energy float64
	for _, m := range magnitudes[firstUsableBin:] {
		energy += m * m
	}
	rms := math.Sqrt(energy / float64(len(magnitudes)-firstUsableBin))
	return clamp01(rms / fullScale)
}

// EnvelopeVolume converts a peak-to-peak delta into a [0,1] volume via the
// equivalent voltage. Gated captures are exactly zero.
func EnvelopeVolume(c Capture, cfg Config, fullScaleVoltage float64) float64 {
	if c.Gated() || fullScaleVoltage <= 0 {
		return 0
	}
	voltage := float64(c.PeakToPeak) * cfg.ReferenceVoltage / cfg.ADCFullScale()
	return clamp01(voltage / fullScaleVoltage)
}
