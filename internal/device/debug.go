package device

import (
	"github.com/dooshek/auralight/internal/light"
	"github.com/dooshek/auralight/internal/logger"
)

// debugOverlay replaces the rendered frame while LEDs are tuned by hand
// from the dashboard. Any mode or power change clears it.
type debugOverlay struct {
	base  light.Frame
	level [light.NumLEDs]uint8
}

func newDebugOverlay(from light.Frame) *debugOverlay {
	d := &debugOverlay{base: from}
	for i := range d.level {
		d.level[i] = 255
	}
	return d
}

func (d *debugOverlay) frame() light.Frame {
	var f light.Frame
	for i, c := range d.base {
		f[i] = light.Solid(c).Scale(d.level[i])[0]
	}
	return f
}

func (l *Loop) overlay() *debugOverlay {
	if l.debug == nil {
		l.debug = newDebugOverlay(l.lastSent)
	}
	return l.debug
}

// HandleDebugColor sets one LED, or all of them for index -1.
func (l *Loop) HandleDebugColor(index int, c light.RGB) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := l.overlay()
	if index < 0 {
		for i := range d.base {
			d.base[i] = c
		}
		return
	}
	if index < light.NumLEDs {
		d.base[index] = c
	}
}

// HandleDebugBrightness dims one LED, or all of them for index -1.
func (l *Loop) HandleDebugBrightness(index int, brightness uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := l.overlay()
	if index < 0 {
		for i := range d.level {
			d.level[i] = brightness
		}
		return
	}
	if index < light.NumLEDs {
		d.level[index] = brightness
	}
}

// HandleDebugClear is the dashboard's clear command.
func (l *Loop) HandleDebugClear() {
	l.ClearDebug()
	logger.Debug("Debug overrides cleared")
}

// ClearDebug returns the luminaire to normal rendering.
func (l *Loop) ClearDebug() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = nil
}
