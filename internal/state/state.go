// Package state holds the luminaire's power and mode, shared by the MQTT,
// D-Bus and device loop goroutines.
package state

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

type Mode int

const (
	ModeTimer Mode = iota
	ModeWeather
	ModeIdle
	ModeMusic
)

var modeNames = [...]string{"timer", "weather", "idle", "music"}

var ErrUnknownMode = errors.New("unknown mode")

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

// ParseMode accepts a mode name in any case.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// ParsePower accepts on/ON/1 and off/OFF/0.
func ParsePower(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "on", "ON", "1":
		return true, nil
	case "off", "OFF", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid power state %q", s)
}

func PowerString(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// Snapshot is the device state at one instant.
type Snapshot struct {
	On   bool
	Mode Mode
}

type Device struct {
	mu   sync.Mutex
	cur  Snapshot
	subs map[int]chan Snapshot
	next int
}

func NewDevice(on bool, mode Mode) *Device {
	return &Device{
		cur:  Snapshot{On: on, Mode: mode},
		subs: make(map[int]chan Snapshot),
	}
}

func (d *Device) Get() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cur
}

// SetOn reports whether the power state changed.
func (d *Device) SetOn(on bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cur.On == on {
		return false
	}
	d.cur.On = on
	d.notify()
	return true
}

// SetMode reports whether the mode changed.
func (d *Device) SetMode(m Mode) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cur.Mode == m {
		return false
	}
	d.cur.Mode = m
	d.notify()
	return true
}

// Subscribe returns a channel receiving every change and a function that
// cancels the subscription. A slow subscriber only sees the latest state.
func (d *Device) Subscribe() (<-chan Snapshot, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.next
	d.next++
	ch := make(chan Snapshot, 1)
	d.subs[id] = ch

	return ch, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if c, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(c)
		}
	}
}

// notify must be called with d.mu held.
func (d *Device) notify() {
	for _, ch := range d.subs {
		select {
		case <-ch:
		default:
		}
		ch <- d.cur
	}
}
