package audio

import (
	"time"
)

// spinWindow is how close to a sample deadline the sampler stops sleeping and
// polls the clock instead; OS sleeps overshoot by more than a sample period.
const spinWindow = 200 * time.Microsecond

// Capture summarises one capture cycle.
type Capture struct {
	Min        int
	Max        int
	Mean       float64
	PeakToPeak int
	Samples    int
	Silent     bool // below the noise threshold
	Saturated  bool // pinned to a rail: floating pin or clipped amp
}

// Gated reports whether the capture must be treated as silence.
func (c Capture) Gated() bool {
	return c.Silent || c.Saturated
}

// Sampler reads the converter on a fixed cadence.
type Sampler struct {
	source         SampleSource
	clock          Clock
	period         time.Duration
	window         time.Duration
	adcMax         int
	noiseThreshold int
	spin           time.Duration
	lastRaw        int
}

// NewSampler creates a sampler for src using cfg's timing and converter settings.
func NewSampler(src SampleSource, cfg Config, clock Clock) *Sampler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Sampler{
		source:         src,
		clock:          clock,
		period:         cfg.SamplePeriod(),
		window:         cfg.SampleWindow(),
		adcMax:         cfg.ADCMax(),
		noiseThreshold: cfg.NoiseThreshold,
		spin:           spinWindow,
	}
}

// LastRaw is the most recent peak-to-peak delta, 0 when the last capture was gated.
func (s *Sampler) LastRaw() int {
	return s.lastRaw
}

// Burst fills dst with uniformly spaced samples for the transform. Device-clocked
// sources are read in one go; anything else is paced against the clock, each
// deadline derived from the burst start so that jitter never accumulates.
func (s *Sampler) Burst(dst []float64) (Capture, error) {
	if bs, ok := s.source.(BurstSource); ok {
		if err := bs.ReadBurst(dst); err != nil {
			s.lastRaw = 0
			return Capture{Silent: true}, err
		}
	} else {
		start := s.clock.Now()
		for i := range dst {
			dst[i] = float64(s.source.ReadSample())
			s.waitUntil(start.Add(time.Duration(i+1) * s.period))
		}
	}

	acc := newAccumulator(s.adcMax)
	for _, v := range dst {
		acc.add(int(v))
	}
	return s.finish(acc), nil
}

// Envelope samples for the configured window, keeping only running statistics.
func (s *Sampler) Envelope() Capture {
	acc := newAccumulator(s.adcMax)
	start := s.clock.Now()
	deadline := start.Add(s.window)

	for i := 1; ; i++ {
		acc.add(s.source.ReadSample())
		next := start.Add(time.Duration(i) * s.period)
		if !next.Before(deadline) {
			break
		}
		s.waitUntil(next)
	}
	return s.finish(acc)
}

func (s *Sampler) finish(acc accumulator) Capture {
	c := acc.capture()
	c.Silent = c.PeakToPeak < s.noiseThreshold
	// A mean within the noise threshold of either rail means the input is not a
	// biased AC signal any more.
	c.Saturated = c.Mean >= float64(s.adcMax-s.noiseThreshold) || c.Mean <= float64(s.noiseThreshold)

	if c.Gated() {
		s.lastRaw = 0
	} else {
		s.lastRaw = c.PeakToPeak
	}
	return c
}

func (s *Sampler) waitUntil(deadline time.Time) {
	for {
		d := deadline.Sub(s.clock.Now())
		if d <= 0 {
			return
		}
		if d > s.spin {
			s.clock.Sleep(d - s.spin)
		}
	}
}

type accumulator struct {
	min, max int
	sum      float64
	n        int
}

func newAccumulator(adcMax int) accumulator {
	return accumulator{min: adcMax + 1, max: -1}
}

func (a *accumulator) add(v int) {
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
	a.sum += float64(v)
	a.n++
}

func (a accumulator) capture() Capture {
	if a.n == 0 {
		return Capture{Silent: true}
	}
	return Capture{
		Min:        a.min,
		Max:        a.max,
		Mean:       a.sum / float64(a.n),
		PeakToPeak: a.max - a.min,
		Samples:    a.n,
	}
}
