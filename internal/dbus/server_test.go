package dbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dooshek/auralight/internal/audio"
	"github.com/dooshek/auralight/internal/state"
)

type fakeAnalyzer struct {
	rng audio.Range
}

func (f *fakeAnalyzer) Volume() float64  { return 0.5 }
func (f *fakeAnalyzer) Decibel() float64 { return 75 }
func (f *fakeAnalyzer) Level(n int) int  { return audio.Quantize(0.5, n) }
func (f *fakeAnalyzer) Bands() [audio.NumBands]float64 {
	var b [audio.NumBands]float64
	b[2] = 0.25
	return b
}
func (f *fakeAnalyzer) VolumeRange() audio.Range { return f.rng }

type fakeControl struct {
	analyzer *fakeAnalyzer
	device   *state.Device
}

func (f *fakeControl) SetVolumeRange(minDb, maxDb float64) error {
	r := audio.Range{Min: minDb, Max: maxDb}
	if err := r.Validate(); err != nil {
		return err
	}
	f.analyzer.rng = r
	return nil
}
func (f *fakeControl) SetMode(m state.Mode)        { f.device.SetMode(m) }
func (f *fakeControl) DeviceState() state.Snapshot { return f.device.Get() }
func (f *fakeControl) StatsJSON() (string, error)  { return "", errors.New("no stats") }

func newTestServer() (*Server, *fakeControl) {
	a := &fakeAnalyzer{rng: audio.Range{Min: 30, Max: 120}}
	c := &fakeControl{analyzer: a, device: state.NewDevice(true, state.ModeIdle)}
	return NewServer(a, c), c
}

func TestReadMethods(t *testing.T) {
	s, _ := newTestServer()

	if v, err := s.GetVolume(); err != nil || v != 0.5 {
		t.Errorf("GetVolume = %v, %v", v, err)
	}
	if v, err := s.GetDecibel(); err != nil || v != 75 {
		t.Errorf("GetDecibel = %v, %v", v, err)
	}
	if l, err := s.GetLevel(8); err != nil || l != 4 {
		t.Errorf("GetLevel(8) = %v, %v", l, err)
	}
	if l, _ := s.GetLevel(0); l != 0 {
		t.Errorf("GetLevel(0) = %v", l)
	}
	bands, err := s.GetBands()
	if err != nil || len(bands) != audio.NumBands || bands[2] != 0.25 {
		t.Errorf("GetBands = %v, %v", bands, err)
	}
	if _, err := s.GetStats(); err == nil {
		t.Error("GetStats swallowed the error")
	}
}

func TestVolumeRangeMethods(t *testing.T) {
	s, _ := newTestServer()

	if err := s.SetVolumeRange(40, 90); err != nil {
		t.Fatalf("SetVolumeRange: %v", err)
	}
	lo, hi, _ := s.GetVolumeRange()
	if lo != 40 || hi != 90 {
		t.Errorf("GetVolumeRange = %v,%v", lo, hi)
	}

	if err := s.SetVolumeRange(90, 40); err == nil {
		t.Error("inverted range accepted")
	}
	lo, hi, _ = s.GetVolumeRange()
	if lo != 40 || hi != 90 {
		t.Errorf("range changed after rejection: %v,%v", lo, hi)
	}
}

func TestModeMethods(t *testing.T) {
	s, c := newTestServer()

	if m, _ := s.GetMode(); m != "idle" {
		t.Errorf("GetMode = %q", m)
	}
	if err := s.SetMode("MUSIC"); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if c.device.Get().Mode != state.ModeMusic {
		t.Errorf("device mode = %v", c.device.Get().Mode)
	}
	if err := s.SetMode("rave"); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestWatchStopsWithoutConnection(t *testing.T) {
	s, c := newTestServer()
	changes, cancelSub := c.device.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Watch(ctx, changes)
		close(done)
	}()

	c.device.SetMode(state.ModeTimer)
	c.device.SetOn(false)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
