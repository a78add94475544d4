package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dooshek/auralight/internal/audio"
	"github.com/dooshek/auralight/internal/light"
	"github.com/dooshek/auralight/internal/state"
	"github.com/dooshek/auralight/internal/types"
)

type recordingHandler struct {
	power      []bool
	modes      []state.Mode
	ranges     [][2]float64
	colors     map[int]light.RGB
	brightness map[int]uint8
	refreshes  int
	clears     int
	rangeErr   error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{colors: map[int]light.RGB{}, brightness: map[int]uint8{}}
}

func (h *recordingHandler) HandlePower(on bool)     { h.power = append(h.power, on) }
func (h *recordingHandler) HandleMode(m state.Mode) { h.modes = append(h.modes, m) }
func (h *recordingHandler) HandleVolumeRange(minDb, maxDb float64) error {
	h.ranges = append(h.ranges, [2]float64{minDb, maxDb})
	return h.rangeErr
}
func (h *recordingHandler) HandleDebugColor(i int, c light.RGB)  { h.colors[i] = c }
func (h *recordingHandler) HandleDebugBrightness(i int, b uint8) { h.brightness[i] = b }
func (h *recordingHandler) HandleRefresh()                       { h.refreshes++ }
func (h *recordingHandler) HandleDebugClear()                    { h.clears++ }

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  interface{}
}

type fakeTransport struct {
	open bool
	err  error
	msgs []published
}

func (f *fakeTransport) IsConnectionOpen() bool { return f.open }
func (f *fakeTransport) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.msgs = append(f.msgs, published{topic, retained, payload})
	return doneToken{f.err}
}

func testTopics() Topics {
	return NewTopics("student/CASA0014", "zczq", "7")
}

func TestTopics(t *testing.T) {
	tp := testTopics()
	tests := map[string]string{
		tp.Status:      "student/CASA0014/zczq/status",
		tp.Mode:        "student/CASA0014/zczq/mode",
		tp.AudioData:   "student/CASA0014/zczq/info/audio/data",
		tp.VolumeRange: "student/CASA0014/zczq/info/audio/volume_range",
		tp.Uptime:      "student/CASA0014/zczq/info/system/uptime",
		tp.Luminaire:   "student/CASA0014/luminaire/7",
		tp.DebugIndex:  "student/CASA0014/zczq/debug/index",
	}
	for got, want := range tests {
		if got != want {
			t.Errorf("topic %q, want %q", got, want)
		}
	}
	if len(tp.Subscriptions()) != 7 {
		t.Errorf("Subscriptions = %v", tp.Subscriptions())
	}
}

func TestFormatAudioData(t *testing.T) {
	s := audio.Snapshot{RawADC: 512, Decibel: 65.24, Level: 3}
	s.Bands[0] = 0.4
	s.Bands[11] = 1
	want := "512,65.2,3,0.40,0.00,0.00,0.00,0.00,0.00,0.00,0.00,0.00,0.00,0.00,1.00"
	if got := FormatAudioData(s); got != want {
		t.Errorf("FormatAudioData = %q\nwant %q", got, want)
	}
}

func TestVolumeRangeFormatting(t *testing.T) {
	if got := FormatVolumeRange(audio.Range{Min: 30, Max: 120}); got != "30,120" {
		t.Errorf("FormatVolumeRange = %q", got)
	}
	if got := FormatVolumeRange(audio.Range{Min: 35.5, Max: 90}); got != "35.5,90" {
		t.Errorf("FormatVolumeRange = %q", got)
	}

	tests := []struct {
		in       string
		min, max float64
		ok       bool
	}{
		{"30,120", 30, 120, true},
		{" 40.5 , 90 ", 40.5, 90, true},
		{"90,30", 90, 30, true}, // parse only; the analyzer rejects it
		{"30", 0, 0, false},
		{"a,b", 0, 0, false},
		{"30,", 0, 0, false},
	}
	for _, tt := range tests {
		lo, hi, err := ParseVolumeRange(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseVolumeRange(%q) error = %v", tt.in, err)
			continue
		}
		if tt.ok && (lo != tt.min || hi != tt.max) {
			t.Errorf("ParseVolumeRange(%q) = %v,%v", tt.in, lo, hi)
		}
	}
}

func TestDispatch(t *testing.T) {
	h := newRecordingHandler()
	c := NewClient(types.DefaultConfig().MQTT, testTopics(), "2.0.0", h)
	tp := c.Topics()

	c.Dispatch(tp.Status, "online") // our own announcement
	c.Dispatch(tp.Status, "ON")
	c.Dispatch(tp.Status, "0")
	c.Dispatch(tp.Mode, "Music")
	c.Dispatch(tp.Mode, "disco")
	c.Dispatch(tp.VolumeRangeSet, "40,95")
	c.Dispatch(tp.VolumeRangeSet, "garbage")
	c.Dispatch(tp.DebugColor, "3:#00FF00")
	c.Dispatch(tp.DebugColor, "#0000FF")
	c.Dispatch(tp.DebugColor, "3:nope")
	c.Dispatch(tp.DebugBrightness, "5:128")
	c.Dispatch(tp.DebugBrightness, ":64")
	c.Dispatch(tp.DebugBrightness, "999")
	c.Dispatch(tp.DebugIndex, "Clear")
	c.Dispatch(tp.DebugIndex, "3")
	c.Dispatch(tp.Refresh, "info")
	c.Dispatch(tp.Refresh, "other")
	c.Dispatch(tp.Base+"/unrelated", "x")

	if len(h.power) != 2 || !h.power[0] || h.power[1] {
		t.Errorf("power = %v, want [true false]", h.power)
	}
	if len(h.modes) != 1 || h.modes[0] != state.ModeMusic {
		t.Errorf("modes = %v", h.modes)
	}
	if len(h.ranges) != 1 || h.ranges[0] != [2]float64{40, 95} {
		t.Errorf("ranges = %v", h.ranges)
	}
	if h.colors[3] != (light.RGB{0, 255, 0}) || h.colors[-1] != (light.RGB{0, 0, 255}) || len(h.colors) != 2 {
		t.Errorf("colors = %v", h.colors)
	}
	if h.brightness[5] != 128 || h.brightness[-1] != 64 || len(h.brightness) != 2 {
		t.Errorf("brightness = %v", h.brightness)
	}
	if h.refreshes != 1 {
		t.Errorf("refreshes = %d", h.refreshes)
	}
	if h.clears != 1 {
		t.Errorf("debug clears = %d, want 1", h.clears)
	}
}

func TestSubscriptionsIncludeDebugIndex(t *testing.T) {
	tp := testTopics()
	for _, s := range tp.Subscriptions() {
		if s == tp.DebugIndex {
			return
		}
	}
	t.Errorf("Subscriptions = %v, missing %s", tp.Subscriptions(), tp.DebugIndex)
}

func TestPublish(t *testing.T) {
	c := NewClient(types.DefaultConfig().MQTT, testTopics(), "2.0.0", newRecordingHandler())

	if err := c.PublishStatus(true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("publish without connection = %v, want ErrNotConnected", err)
	}

	ft := &fakeTransport{open: true}
	c.pub = ft

	if err := c.PublishStatus(true); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}
	if err := c.PublishMode(state.ModeIdle); err != nil {
		t.Fatalf("PublishMode: %v", err)
	}
	if err := c.PublishVolumeRange(audio.Range{Min: 30, Max: 120}); err != nil {
		t.Fatalf("PublishVolumeRange: %v", err)
	}
	frame := light.Solid(light.RGB{1, 2, 3})
	if err := c.PublishFrame(frame.Payload()); err != nil {
		t.Fatalf("PublishFrame: %v", err)
	}
	if err := c.PublishFrame(make([]byte, 10)); err == nil {
		t.Error("PublishFrame accepted a short payload")
	}

	want := []published{
		{c.topics.Status, true, "on"},
		{c.topics.Mode, true, "idle"},
		{c.topics.VolumeRange, true, "30,120"},
	}
	if len(ft.msgs) != 4 {
		t.Fatalf("published %d messages, want 4", len(ft.msgs))
	}
	for i, w := range want {
		if ft.msgs[i] != w {
			t.Errorf("message %d = %+v, want %+v", i, ft.msgs[i], w)
		}
	}
	if ft.msgs[3].topic != c.topics.Luminaire || ft.msgs[3].retained {
		t.Errorf("frame published as %+v", ft.msgs[3])
	}
	if p, ok := ft.msgs[3].payload.([]byte); !ok || len(p) != light.PayloadSize {
		t.Errorf("frame payload %T", ft.msgs[3].payload)
	}

	ft.err = errors.New("broker said no")
	if err := c.PublishUptime("0h 1m 0s"); err == nil {
		t.Error("publish error was swallowed")
	}
}

func TestConnectToUnreachableBrokerKeepsRetrying(t *testing.T) {
	cfg := types.DefaultConfig().MQTT
	cfg.Broker = "tcp://127.0.0.1:1"
	cfg.ConnectTimeoutMs = 100

	c := NewClient(cfg, testTopics(), "2.0.0", newRecordingHandler())
	start := time.Now()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect = %v, want nil while retrying", err)
	}
	if waited := time.Since(start); waited > 2*time.Second {
		t.Errorf("Connect blocked for %v", waited)
	}
	if c.Connected() {
		t.Error("Connected with no broker listening")
	}
	if err := c.PublishStatus(true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishStatus = %v, want ErrNotConnected", err)
	}
	c.Close()
}
