package audio

import (
	"math"
	"math/rand/v2"
)

// BinGroup is an inclusive run of FFT bins averaged into one band.
type BinGroup struct {
	First int `yaml:"first"`
	Last  int `yaml:"last"`
}

// DefaultBinGroups covers bins 2..30 of a 64-point transform at 4 kHz
// (125 Hz .. 1.9 kHz), widening from two to four bins towards the treble.
func DefaultBinGroups() []BinGroup {
	return []BinGroup{
		{2, 3}, {4, 5}, {6, 7}, {8, 9}, {10, 11}, {12, 13},
		{14, 15}, {16, 17}, {18, 20}, {21, 23}, {24, 26}, {27, 30},
	}
}

// Tier is a contiguous run of synthesized bands sharing one response.
type Tier struct {
	Name           string  `yaml:"name"`
	First          int     `yaml:"first"`
	Last           int     `yaml:"last"`
	SmoothedWeight float64 `yaml:"smoothed_weight"` // weight of the smoothed volume
	InstantWeight  float64 `yaml:"instant_weight"`  // weight of this cycle's volume
	DeltaGain      float64 `yaml:"delta_gain"`      // weight of |Δvolume|
	Delta2Gain     float64 `yaml:"delta2_gain"`     // weight of |Δ²volume|
	JitterMin      float64 `yaml:"jitter_min"`
	JitterMax      float64 `yaml:"jitter_max"`
	Alpha          float64 `yaml:"alpha"`
	Decay          float64 `yaml:"decay"`
}

// DefaultTiers: bass follows the smoothed loudness, treble follows transients.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "sub-bass", First: 0, Last: 1, SmoothedWeight: 1.0, JitterMin: 0.95, JitterMax: 1.05, Alpha: 0.15, Decay: 0.95},
		{Name: "bass", First: 2, Last: 3, SmoothedWeight: 0.85, InstantWeight: 0.15, DeltaGain: 0.5, JitterMin: 0.9, JitterMax: 1.1, Alpha: 0.2, Decay: 0.95},
		{Name: "mid", First: 4, Last: 6, SmoothedWeight: 0.5, InstantWeight: 0.5, DeltaGain: 1.0, Delta2Gain: 0.5, JitterMin: 0.85, JitterMax: 1.15, Alpha: 0.3, Decay: 0.95},
		{Name: "high-mid", First: 7, Last: 9, SmoothedWeight: 0.2, InstantWeight: 0.8, DeltaGain: 2.0, Delta2Gain: 1.5, JitterMin: 0.8, JitterMax: 1.2, Alpha: 0.45, Decay: 0.95},
		{Name: "treble", First: 10, Last: 11, InstantWeight: 1.0, DeltaGain: 3.0, Delta2Gain: 2.5, JitterMin: 0.7, JitterMax: 1.3, Alpha: 0.6, Decay: 0.95},
	}
}

// BandInput is what a strategy sees each cycle.
type BandInput struct {
	Magnitudes []float64 // nil on the envelope path or when the capture was gated
	Volume     float64   // this cycle's normalised volume
	Smoothed   float64   // smoothed normalised volume
}

// BandStrategy updates the raw and smoothed band vectors for one cycle.
type BandStrategy interface {
	Name() string
	Update(in BandInput, raw, smoothed *[NumBands]float64)
}

// SpectrumBands averages bin groups and peak-normalises per cycle.
type SpectrumBands struct {
	groups    []BinGroup
	minSignal float64
	alpha     float64
	decay     float64
	lastPeak  float64
}

func NewSpectrumBands(cfg BandsConfig) *SpectrumBands {
	groups := cfg.Groups
	if len(groups) != NumBands {
		groups = DefaultBinGroups()
	}
	return &SpectrumBands{
		groups:    groups,
		minSignal: cfg.MinSignal,
		alpha:     cfg.Alpha,
		decay:     cfg.Decay,
	}
}

func (s *SpectrumBands) Name() string { return StrategySpectrum }

// LastPeak is the largest raw band average of the previous cycle, before normalisation.
func (s *SpectrumBands) LastPeak() float64 { return s.lastPeak }

func (s *SpectrumBands) Update(in BandInput, raw, smoothed *[NumBands]float64) {
	peak := 0.0
	for i, g := range s.groups {
		raw[i] = meanBins(in.Magnitudes, g)
		peak = math.Max(peak, raw[i])
	}
	s.lastPeak = peak

	// A near-empty spectrum is not normalised; the cycle counts as silence and
	// the smoothed bands fall off through the regular blend.
	if peak <= s.minSignal {
		*raw = [NumBands]float64{}
	} else {
		for i := range raw {
			raw[i] /= peak
		}
	}

	for i := range smoothed {
		v := ema(smoothed[i], raw[i], s.alpha) * s.decay
		smoothed[i] = settle(clamp01(v))
		raw[i] = clamp01(raw[i])
	}
}

func meanBins(mags []float64, g BinGroup) float64 {
	if g.First >= len(mags) {
		return 0
	}
	last := min(g.Last, len(mags)-1)
	sum := 0.0
	for b := g.First; b <= last; b++ {
		sum += mags[b]
	}
	return sum / float64(last-g.First+1)
}

// SynthesizedBands derives a believable spectrum from loudness dynamics alone,
// for hardware whose input path cannot resolve frequency.
type SynthesizedBands struct {
	tiers     []Tier
	rng       *rand.Rand
	prevVol   float64
	prevDelta float64
	primed    bool
}

func NewSynthesizedBands(cfg BandsConfig, src rand.Source) *SynthesizedBands {
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	if src == nil {
		src = rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	}
	return &SynthesizedBands{
		tiers: tiers,
		rng:   rand.New(src),
	}
}

func (s *SynthesizedBands) Name() string { return StrategySynthesized }

func (s *SynthesizedBands) Update(in BandInput, raw, smoothed *[NumBands]float64) {
	var delta, delta2 float64
	if s.primed {
		delta = in.Volume - s.prevVol
		delta2 = delta - s.prevDelta
	}
	s.prevVol, s.prevDelta, s.primed = in.Volume, delta, true

	for _, t := range s.tiers {
		base := t.SmoothedWeight*in.Smoothed +
			t.InstantWeight*in.Volume +
			t.DeltaGain*math.Abs(delta) +
			t.Delta2Gain*math.Abs(delta2)

		for b := t.First; b <= t.Last && b < NumBands; b++ {
			jitter := t.JitterMin + s.rng.Float64()*(t.JitterMax-t.JitterMin)
			raw[b] = clamp01(base * jitter)
			v := ema(smoothed[b], raw[b], t.Alpha) * t.Decay
			smoothed[b] = settle(clamp01(v))
		}
	}
}

// NewBandStrategy builds the strategy named in cfg.
func NewBandStrategy(cfg BandsConfig) BandStrategy {
	if cfg.Strategy == StrategySynthesized {
		return NewSynthesizedBands(cfg, nil)
	}
	return NewSpectrumBands(cfg)
}
