// Package audio turns a single analog microphone channel into loudness and a
// 12-band intensity vector for the light renderers.
package audio

import (
	"errors"
	"sync"
	"time"
)

// NumBands is the fixed width of every band vector.
const NumBands = 12

// SampleSource reads one converter sample now.
type SampleSource interface {
	ReadSample() int
}

// BurstSource is implemented by sources whose samples are clocked by the device
// itself. ReadBurst fills dst with len(dst) uniformly spaced samples.
type BurstSource interface {
	ReadBurst(dst []float64) error
}

var ErrCaptureTimeout = errors.New("timed out waiting for audio samples")

// PCM16ToADC maps a signed 16-bit PCM sample onto an unsigned converter code of
// the given width, so silence sits at mid-scale like a biased microphone amp.
func PCM16ToADC(s int16, bits int) int {
	return (int(s) + 32768) >> (16 - bits)
}

// Clock is the time base used for pacing captures.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// ringSource buffers device-clocked samples for MicSource and FileSource.
type ringSource struct {
	mu     sync.Mutex
	ring   *sampleRing
	last   int
	notify chan struct{}
	period time.Duration
}

func newRingSource(capacity int, sampleRate int, idle int) *ringSource {
	return &ringSource{
		ring:   newSampleRing(capacity),
		last:   idle,
		notify: make(chan struct{}, 1),
		period: time.Second / time.Duration(sampleRate),
	}
}

func (r *ringSource) push(samples []int) {
	if len(samples) == 0 {
		return
	}
	r.mu.Lock()
	r.ring.write(samples)
	r.last = samples[len(samples)-1]
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// ReadSample returns the oldest buffered sample, or the most recent one when
// the buffer has drained.
func (r *ringSource) ReadSample() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.ring.pop(); ok {
		return v
	}
	return r.last
}

// ReadBurst drops the backlog and waits for len(dst) fresh samples.
func (r *ringSource) ReadBurst(dst []float64) error {
	r.mu.Lock()
	r.ring.reset()
	r.mu.Unlock()

	timeout := time.NewTimer(4*time.Duration(len(dst))*r.period + 100*time.Millisecond)
	defer timeout.Stop()

	for {
		r.mu.Lock()
		if r.ring.len() >= len(dst) {
			for i := range dst {
				v, _ := r.ring.pop()
				dst[i] = float64(v)
			}
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		select {
		case <-r.notify:
		case <-timeout.C:
			return ErrCaptureTimeout
		}
	}
}

// sampleRing is a fixed-capacity FIFO; writes beyond capacity drop the oldest samples.
type sampleRing struct {
	buf  []int
	head int
	size int
}

func newSampleRing(capacity int) *sampleRing {
	if capacity < 1 {
		capacity = 1
	}
	return &sampleRing{buf: make([]int, capacity)}
}

func (r *sampleRing) write(samples []int) {
	for _, s := range samples {
		tail := (r.head + r.size) % len(r.buf)
		r.buf[tail] = s
		if r.size == len(r.buf) {
			r.head = (r.head + 1) % len(r.buf)
		} else {
			r.size++
		}
	}
}

func (r *sampleRing) pop() (int, bool) {
	if r.size == 0 {
		return 0, false
	}
	v := r.buf[r.head]
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return v, true
}

func (r *sampleRing) len() int { return r.size }

func (r *sampleRing) reset() {
	r.head = 0
	r.size = 0
}
