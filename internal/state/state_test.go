package state

import (
	"errors"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"timer", ModeTimer, true},
		{"WEATHER", ModeWeather, true},
		{" idle ", ModeIdle, true},
		{"Music", ModeMusic, true},
		{"party", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.ok {
			if err != nil || got != tt.want {
				t.Errorf("ParseMode(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
			if got.String() != modeNames[tt.want] {
				t.Errorf("String() = %q", got.String())
			}
			continue
		}
		if !errors.Is(err, ErrUnknownMode) {
			t.Errorf("ParseMode(%q) error = %v, want ErrUnknownMode", tt.in, err)
		}
	}
	if Mode(9).String() != "unknown" {
		t.Errorf("out-of-range mode String() = %q", Mode(9).String())
	}
}

func TestParsePower(t *testing.T) {
	for _, s := range []string{"on", "ON", "1"} {
		if on, err := ParsePower(s); err != nil || !on {
			t.Errorf("ParsePower(%q) = %v, %v", s, on, err)
		}
	}
	for _, s := range []string{"off", "OFF", "0"} {
		if on, err := ParsePower(s); err != nil || on {
			t.Errorf("ParsePower(%q) = %v, %v", s, on, err)
		}
	}
	if _, err := ParsePower("maybe"); err == nil {
		t.Error("ParsePower accepted garbage")
	}
}

func TestDeviceChangesAndSubscribers(t *testing.T) {
	d := NewDevice(false, ModeIdle)
	ch, cancel := d.Subscribe()

	if d.SetMode(ModeIdle) {
		t.Error("SetMode to the same mode reported a change")
	}
	if !d.SetOn(true) {
		t.Fatal("SetOn(true) reported no change")
	}
	if !d.SetMode(ModeMusic) {
		t.Fatal("SetMode(music) reported no change")
	}

	// Only the latest state is kept for a subscriber that has not read yet.
	got := <-ch
	if got != (Snapshot{On: true, Mode: ModeMusic}) {
		t.Errorf("subscriber got %+v", got)
	}
	select {
	case s := <-ch:
		t.Errorf("unexpected extra notification %+v", s)
	default:
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
	d.SetOn(false) // must not panic on the closed subscriber
	cancel()
}
