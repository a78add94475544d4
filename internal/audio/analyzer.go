package audio

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/dooshek/auralight/internal/logger"
)

// Snapshot is every analyzer output at one instant.
type Snapshot struct {
	Timestamp time.Time         `json:"timestamp"`
	RawADC    int               `json:"raw"`
	Volume    float64           `json:"volume"`
	Decibel   float64           `json:"decibel"`
	Level     int               `json:"level"`
	Bands     [NumBands]float64 `json:"bands"`
	Range     Range             `json:"range"`
	Silent    bool              `json:"silent"`
}

// Analyzer runs the capture → estimate → band → calibrate → smooth pipeline.
// Tick must only be called from one goroutine; the accessors may be called
// from anywhere.
type Analyzer struct {
	cfg        Config
	sampler    *Sampler
	estimator  *SpectrumEstimator
	strategy   BandStrategy
	calibrator Calibrator
	clock      Clock
	burst      []float64
	interval   time.Duration
	fullScaleV float64

	debugEvery *logger.Limiter
	warnEvery  *logger.Limiter

	mu             sync.RWMutex
	rng            Range
	lastTick       time.Time
	currentVolume  float64
	smoothedVolume float64
	rawBands       [NumBands]float64
	smoothedBands  [NumBands]float64
	rawADC         int
	silent         bool
}

// Option customises an Analyzer.
type Option func(*Analyzer)

func WithClock(c Clock) Option {
	return func(a *Analyzer) { a.clock = c }
}

func WithStrategy(s BandStrategy) Option {
	return func(a *Analyzer) { a.strategy = s }
}

func WithCalibrator(c Calibrator) Option {
	return func(a *Analyzer) { a.calibrator = c }
}

// WithRandSource seeds the synthesized strategy's jitter.
func WithRandSource(src rand.Source) Option {
	return func(a *Analyzer) {
		if a.cfg.Bands.Strategy == StrategySynthesized {
			a.strategy = NewSynthesizedBands(a.cfg.Bands, src)
		}
	}
}

// NewAnalyzer validates cfg and wires the pipeline around src.
func NewAnalyzer(cfg Config, src SampleSource, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cal, err := cfg.Calibration.Resolved()
	if err != nil {
		return nil, err
	}

	a := &Analyzer{
		cfg:        cfg,
		clock:      SystemClock(),
		strategy:   NewBandStrategy(cfg.Bands),
		interval:   cfg.TickInterval(),
		fullScaleV: cal.FullScaleVoltage,
		rng:        Range{Min: cfg.MinDecibel, Max: cfg.MaxDecibel},
		debugEvery: logger.Every(time.Duration(cfg.DebugIntervalMs) * time.Millisecond),
		warnEvery:  logger.Every(time.Duration(cfg.WarnIntervalMs) * time.Millisecond),
	}
	if a.calibrator, err = NewCalibrator(cal); err != nil {
		return nil, err
	}

	if cfg.Path == PathFFT {
		if a.estimator, err = NewSpectrumEstimator(cfg.FFTSize); err != nil {
			return nil, err
		}
		a.burst = make([]float64, cfg.FFTSize)
	}

	for _, opt := range opts {
		opt(a)
	}
	a.sampler = NewSampler(src, cfg, a.clock)

	return a, nil
}

// Describe logs the pipeline layout once at startup.
func (a *Analyzer) Describe() {
	logger.Infof("🎤 Audio analyzer: path=%s bands=%s", a.cfg.Path, a.strategy.Name())
	if a.cfg.Path == PathFFT {
		logger.Infof("🎤 Sampling %d Hz, %d samples, %.1f Hz/bin, period %v",
			a.cfg.SampleRate, a.cfg.FFTSize, a.estimator.BinWidth(a.cfg.SampleRate), a.cfg.SamplePeriod())
	} else {
		logger.Infof("🎤 Envelope window %v", a.cfg.SampleWindow())
	}
	r := a.VolumeRange()
	logger.Infof("🎚️  Volume range %.1f - %.1f dB", r.Min, r.Max)
}

// Tick runs one analysis cycle if at least the tick interval has passed since
// the previous one. It reports whether a cycle ran.
func (a *Analyzer) Tick(now time.Time) bool {
	a.mu.RLock()
	last := a.lastTick
	a.mu.RUnlock()
	if !last.IsZero() && now.Sub(last) < a.interval {
		return false
	}

	var (
		capture Capture
		volume  float64
		in      BandInput
	)

	switch a.cfg.Path {
	case PathFFT:
		var err error
		capture, err = a.sampler.Burst(a.burst)
		if err != nil {
			if a.warnEvery.Allow(now) {
				logger.Warnf("Audio capture failed, reporting silence: %v", err)
			}
		} else if !capture.Gated() {
			in.Magnitudes = a.estimator.Transform(a.burst)
			volume = SpectralVolume(in.Magnitudes, a.cfg.RMSFullScale)
		}
	case PathEnvelope:
		capture = a.sampler.Envelope()
		volume = EnvelopeVolume(capture, a.cfg, a.fullScaleV)
	}

	if capture.Saturated && a.warnEvery.Allow(now) {
		logger.Warnf("Microphone input pinned at %.0f (rail), check the sensor connection", capture.Mean)
	}

	a.mu.Lock()
	a.lastTick = now
	a.rawADC = a.sampler.LastRaw()
	a.silent = capture.Gated()
	a.currentVolume = volume
	a.smoothedVolume = settle(ema(a.smoothedVolume, volume, a.cfg.VolumeAlpha))

	in.Volume = a.currentVolume
	in.Smoothed = a.smoothedVolume
	a.strategy.Update(in, &a.rawBands, &a.smoothedBands)
	bands := a.smoothedBands
	a.mu.Unlock()

	if a.debugEvery.Allow(now) {
		logger.Debugf("[bands] %s | vol %.3f", formatBands(bands), volume)
	}
	return true
}

// SetVolumeRange replaces the normalisation range. An invalid range is
// rejected and the previous one stays active.
func (a *Analyzer) SetVolumeRange(minDb, maxDb float64) error {
	r := Range{Min: minDb, Max: maxDb}
	if err := r.Validate(); err != nil {
		logger.Warnf("Rejected volume range: %v", err)
		return err
	}

	a.mu.Lock()
	a.rng = r
	a.mu.Unlock()

	logger.Infof("🎚️  Volume range updated: %.1f - %.1f dB", minDb, maxDb)
	return nil
}

func (a *Analyzer) VolumeRange() Range {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rng
}

// RawADC is the last peak-to-peak converter delta; 0 when the last cycle was silent.
func (a *Analyzer) RawADC() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rawADC
}

// CurrentVolume is this cycle's unsmoothed volume in [0,1].
func (a *Analyzer) CurrentVolume() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentVolume
}

// SmoothedVolume is the exponentially smoothed volume in [0,1].
func (a *Analyzer) SmoothedVolume() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.smoothedVolume
}

// Decibel is the calibrated absolute level of the smoothed volume.
func (a *Analyzer) Decibel() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.calibrator.Decibel(a.smoothedVolume, a.rng)
}

// Volume is the decibel level normalised to the configured range.
func (a *Analyzer) Volume() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Normalize(a.calibrator.Decibel(a.smoothedVolume, a.rng), a.rng)
}

// Level quantises Volume into maxLevels steps, 0..maxLevels-1.
func (a *Analyzer) Level(maxLevels int) int {
	return Quantize(a.Volume(), maxLevels)
}

// Bands returns a copy of the smoothed band vector.
func (a *Analyzer) Bands() [NumBands]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.smoothedBands
}

// RawBands returns a copy of this cycle's unsmoothed band vector.
func (a *Analyzer) RawBands() [NumBands]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rawBands
}

// Band returns one smoothed band, or 0 for an index outside 0..11.
func (a *Analyzer) Band(i int) float64 {
	if i < 0 || i >= NumBands {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.smoothedBands[i]
}

// Snapshot collects all outputs under one lock.
func (a *Analyzer) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	db := a.calibrator.Decibel(a.smoothedVolume, a.rng)
	volume := Normalize(db, a.rng)
	return Snapshot{
		Timestamp: a.lastTick,
		RawADC:    a.rawADC,
		Volume:    volume,
		Decibel:   db,
		Level:     Quantize(volume, VULevels),
		Bands:     a.smoothedBands,
		Range:     a.rng,
		Silent:    a.silent,
	}
}

func formatBands(b [NumBands]float64) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%d:%.2f", i, v)
	}
	return sb.String()
}
