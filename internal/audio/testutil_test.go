package audio

import (
	"math"
	"testing"
	"time"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now    time.Time
	slept  time.Duration
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	c.slept += d
	c.sleeps++
}

// clockedSource returns samples from a function of the fake clock's time, so
// the sampler's pacing decides which point of the waveform gets read.
type clockedSource struct {
	clock *fakeClock
	start time.Time
	fn    func(t float64) int
	reads int
}

func (s *clockedSource) ReadSample() int {
	s.reads++
	return s.fn(s.clock.Now().Sub(s.start).Seconds())
}

// sequenceSource replays values in order and then repeats the last one.
type sequenceSource struct {
	values []int
	pos    int
}

func (s *sequenceSource) ReadSample() int {
	v := s.values[min(s.pos, len(s.values)-1)]
	s.pos++
	return v
}

// constSource is a perfectly still input.
type constSource int

func (c constSource) ReadSample() int { return int(c) }

// sineADC returns a sine around mid-scale with the given peak-to-peak swing.
func sineADC(freq float64, peakToPeak int, mid int) func(t float64) int {
	amp := float64(peakToPeak) / 2
	return func(t float64) int {
		return mid + int(math.Round(amp*math.Sin(2*math.Pi*freq*t)))
	}
}

// squareADC alternates between mid±peakToPeak/2 on every read.
func squareADC(peakToPeak int, mid int) *sequenceSource {
	values := make([]int, 1<<16)
	for i := range values {
		if i%2 == 0 {
			values[i] = mid - peakToPeak/2
		} else {
			values[i] = mid + peakToPeak - peakToPeak/2
		}
	}
	return &sequenceSource{values: values}
}

// newTestAnalyzer builds an analyzer on a fake clock with busy-wait disabled.
func newTestAnalyzer(t *testing.T, cfg Config, src SampleSource, opts ...Option) (*Analyzer, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	opts = append([]Option{WithClock(clock)}, opts...)
	a, err := NewAnalyzer(cfg, src, opts...)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	a.sampler.spin = 0
	return a, clock
}

// runTicks advances the clock by one tick interval per cycle.
func runTicks(t *testing.T, a *Analyzer, clock *fakeClock, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		clock.Sleep(a.interval)
		if !a.Tick(clock.Now()) {
			t.Fatalf("tick %d did not run", i)
		}
	}
}

func assertUnitInterval(t *testing.T, name string, v float64) {
	t.Helper()
	if v < 0 || v > 1 || math.IsNaN(v) {
		t.Fatalf("%s = %v, want within [0,1]", name, v)
	}
}
