package audio

import (
	"errors"
	"math"
	"testing"
)

func TestNewSpectrumEstimatorRejectsBadSize(t *testing.T) {
	for _, n := range []int{0, 3, 48, 100} {
		if _, err := NewSpectrumEstimator(n); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewSpectrumEstimator(%d) error = %v, want ErrInvalidConfig", n, err)
		}
	}
}

// A sine at a quarter of the Nyquist frequency with a 500-count swing, fed
// through the paced sampler, must peak at its own bin and light its band.
func TestSpectrumQuarterNyquistSine(t *testing.T) {
	cfg := DefaultConfig()
	clock := newFakeClock()
	nyquist := float64(cfg.SampleRate) / 2
	freq := nyquist / 4 // 500 Hz, bin 8 at 62.5 Hz/bin

	src := &clockedSource{clock: clock, start: clock.Now(), fn: sineADC(freq, 500, 512)}
	s := newTestSampler(src, cfg, clock)

	burst := make([]float64, cfg.FFTSize)
	c, err := s.Burst(burst)
	if err != nil {
		t.Fatalf("Burst: %v", err)
	}
	if c.PeakToPeak < 495 || c.PeakToPeak > 500 {
		t.Fatalf("PeakToPeak = %d, want ~500", c.PeakToPeak)
	}

	est, err := NewSpectrumEstimator(cfg.FFTSize)
	if err != nil {
		t.Fatalf("NewSpectrumEstimator: %v", err)
	}
	mags := est.Transform(burst)
	if len(mags) != cfg.FFTSize/2 {
		t.Fatalf("got %d bins, want %d", len(mags), cfg.FFTSize/2)
	}

	wantBin := int(math.Round(freq / est.BinWidth(cfg.SampleRate)))
	peakBin := firstUsableBin
	for b := firstUsableBin; b < len(mags); b++ {
		if mags[b] > mags[peakBin] {
			peakBin = b
		}
	}
	if peakBin < wantBin-1 || peakBin > wantBin+1 {
		t.Fatalf("peak at bin %d, want within one of %d (mags %v)", peakBin, wantBin, mags)
	}

	bands := NewSpectrumBands(cfg.Bands)
	var raw, smoothed [NumBands]float64
	bands.Update(BandInput{Magnitudes: mags}, &raw, &smoothed)

	// Bins 8-9 form band 3.
	const toneBand = 3
	if raw[toneBand] != 1 {
		t.Errorf("tone band normalised to %.3f, want 1", raw[toneBand])
	}
	for i, v := range raw {
		if i == toneBand {
			continue
		}
		if v >= raw[toneBand] {
			t.Errorf("band %d = %.3f not below tone band", i, v)
		}
		if i > toneBand+1 || i < toneBand-1 {
			if v > 0.1 {
				t.Errorf("unrelated band %d = %.3f, want < 0.1", i, v)
			}
		}
	}
}

func TestSpectralVolume(t *testing.T) {
	mags := make([]float64, 32)
	mags[0] = 1e6 // DC must not count
	mags[1] = 1e6
	if got := SpectralVolume(mags, 500); got != 0 {
		t.Errorf("DC-only spectrum volume = %v, want 0", got)
	}

	for i := firstUsableBin; i < len(mags); i++ {
		mags[i] = 250
	}
	if got := SpectralVolume(mags, 500); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("flat 250 spectrum volume = %v, want 0.5", got)
	}

	mags[10] = 1e9
	if got := SpectralVolume(mags, 500); got != 1 {
		t.Errorf("huge spectrum volume = %v, want clamp to 1", got)
	}
	if got := SpectralVolume(nil, 500); got != 0 {
		t.Errorf("empty spectrum volume = %v, want 0", got)
	}
}

func TestEnvelopeVolume(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name string
		c    Capture
		want float64
	}{
		{"half scale", Capture{PeakToPeak: 512, Mean: 512}, 0.5},
		{"full scale", Capture{PeakToPeak: 1024, Mean: 512}, 1},
		{"silent", Capture{PeakToPeak: 3, Silent: true}, 0},
		{"saturated", Capture{PeakToPeak: 900, Saturated: true}, 0},
	}
	for _, tt := range tests {
		if got := EnvelopeVolume(tt.c, cfg, 3.3); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%s: EnvelopeVolume = %v, want %v", tt.name, got, tt.want)
		}
	}
}
