package light

import "time"

// Breather drives the idle-mode brightness ramp: two steps per interval,
// bouncing between 0 and 255.
type Breather struct {
	step       time.Duration
	last       time.Time
	brightness int
	direction  int
}

func NewBreather(step time.Duration) *Breather {
	return &Breather{step: step, direction: 1}
}

// Reset restarts the ramp from dark.
func (b *Breather) Reset(now time.Time) {
	b.brightness = 0
	b.direction = 1
	b.last = now
}

// Update advances the ramp by the number of whole steps elapsed since the
// last change. It reports whether the brightness changed.
func (b *Breather) Update(now time.Time) (uint8, bool) {
	if b.last.IsZero() {
		b.last = now
		return uint8(b.brightness), false
	}
	steps := int(now.Sub(b.last) / b.step)
	if steps <= 0 {
		return uint8(b.brightness), false
	}
	b.last = b.last.Add(time.Duration(steps) * b.step)

	for i := 0; i < steps; i++ {
		b.brightness += 2 * b.direction
		if b.brightness >= 255 {
			b.brightness = 255
			b.direction = -1
		} else if b.brightness <= 0 {
			b.brightness = 0
			b.direction = 1
		}
	}
	return uint8(b.brightness), true
}
