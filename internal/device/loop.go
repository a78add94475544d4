// Package device runs the cooperative main loop: analyze, render the
// luminaire for the current mode, and publish at the configured rates.
package device

import (
	"context"
	"sync"
	"time"

	"github.com/dooshek/auralight/internal/audio"
	"github.com/dooshek/auralight/internal/light"
	"github.com/dooshek/auralight/internal/logger"
	"github.com/dooshek/auralight/internal/state"
	"github.com/dooshek/auralight/internal/stats"
	"github.com/dooshek/auralight/internal/types"
)

// Publisher is where the loop sends its outputs.
type Publisher interface {
	PublishAudio(s audio.Snapshot) error
	PublishFrame(payload []byte) error
	PublishStatus(on bool) error
	PublishMode(m state.Mode) error
	PublishVolumeRange(r audio.Range) error
	PublishUptime(uptime string) error
}

// NopPublisher discards everything; used when MQTT is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishAudio(audio.Snapshot) error    { return nil }
func (NopPublisher) PublishFrame([]byte) error            { return nil }
func (NopPublisher) PublishStatus(bool) error             { return nil }
func (NopPublisher) PublishMode(state.Mode) error         { return nil }
func (NopPublisher) PublishVolumeRange(audio.Range) error { return nil }
func (NopPublisher) PublishUptime(string) error           { return nil }

// RangeStore persists an accepted volume range.
type RangeStore func(minDb, maxDb float64) error

type Loop struct {
	cfg           types.Config
	analyzer      *audio.Analyzer
	device        *state.Device
	stats         *stats.Manager
	clock         audio.Clock
	breather      *light.Breather
	publishErrors *logger.Limiter

	mu         sync.Mutex
	pub        Publisher
	storeRange RangeStore
	brightness uint8
	debug      *debugOverlay
	lastMode   state.Mode
	lastSent   light.Frame
	sentOnce   bool
	lastFrame  time.Time
	lastAudio  time.Time
	lastUptime time.Time
}

type Option func(*Loop)

func WithPublisher(p Publisher) Option {
	return func(l *Loop) { l.pub = p }
}

func WithRangeStore(s RangeStore) Option {
	return func(l *Loop) { l.storeRange = s }
}

func WithClock(c audio.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

func New(cfg types.Config, analyzer *audio.Analyzer, device *state.Device, st *stats.Manager, opts ...Option) *Loop {
	l := &Loop{
		cfg:           cfg,
		analyzer:      analyzer,
		device:        device,
		stats:         st,
		clock:         audio.SystemClock(),
		breather:      light.NewBreather(cfg.Luminaire.BreathStep()),
		publishErrors: logger.Every(30 * time.Second),
		pub:           NopPublisher{},
		brightness:    uint8(cfg.Luminaire.Brightness),
		lastMode:      device.Get().Mode,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetPublisher swaps the output sink, e.g. once the MQTT client exists.
func (l *Loop) SetPublisher(p Publisher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pub = p
}

func (l *Loop) publisher() Publisher {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pub
}

func (l *Loop) report(what string, err error, now time.Time) {
	if err != nil && l.publishErrors.Allow(now) {
		logger.Warnf("Failed to publish %s: %v", what, err)
	}
}

// Run steps the loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.analyzer.Describe()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !l.Step(l.clock.Now()) {
			l.clock.Sleep(time.Millisecond)
		}
	}
}

// Step runs one loop iteration and reports whether an analysis cycle ran.
func (l *Loop) Step(now time.Time) bool {
	ran := l.analyzer.Tick(now)
	var snap audio.Snapshot
	if ran {
		snap = l.analyzer.Snapshot()
		l.stats.Record(snap)
	}

	dev := l.device.Get()
	pub := l.publisher()

	l.mu.Lock()
	if dev.Mode != l.lastMode {
		if dev.Mode == state.ModeIdle {
			l.breather.Reset(now)
		}
		l.lastMode = dev.Mode
	}

	var payload []byte
	if now.Sub(l.lastFrame) >= l.cfg.Luminaire.PublishInterval() {
		frame := l.render(dev, now)
		if !l.sentOnce || frame != l.lastSent {
			l.lastSent, l.sentOnce = frame, true
			l.lastFrame = now
			payload = frame.Payload()
		}
	}

	sendAudio := ran && now.Sub(l.lastAudio) >= l.cfg.MQTT.AudioInterval()
	if sendAudio {
		l.lastAudio = now
	}
	sendUptime := now.Sub(l.lastUptime) >= l.cfg.MQTT.UptimeInterval()
	if sendUptime {
		l.lastUptime = now
	}
	l.mu.Unlock()

	if payload != nil {
		l.report("luminaire frame", pub.PublishFrame(payload), now)
	}
	if sendAudio {
		l.report("audio data", pub.PublishAudio(snap), now)
	}
	if sendUptime {
		l.report("uptime", pub.PublishUptime(stats.FormatUptime(l.stats.Uptime(now))), now)
	}
	return ran
}

// render must be called with l.mu held.
func (l *Loop) render(dev state.Snapshot, now time.Time) light.Frame {
	if !dev.On {
		return light.Clear()
	}
	if l.debug != nil {
		return l.debug.frame()
	}

	switch dev.Mode {
	case state.ModeMusic:
		if l.cfg.Luminaire.Style == types.StyleVU {
			return light.VU(l.analyzer.Level(audio.VULevels), audio.VULevels).Scale(l.brightness)
		}
		return light.Spectrum(l.analyzer.Bands()).Scale(l.brightness)
	case state.ModeIdle:
		b, _ := l.breather.Update(now)
		return light.Solid(light.ModeColor(dev.Mode)).Scale(b)
	default:
		return light.Solid(light.ModeColor(dev.Mode)).Scale(l.brightness)
	}
}

// Snapshot exposes the analyzer for the dashboard feed and monitor.
func (l *Loop) Snapshot() audio.Snapshot { return l.analyzer.Snapshot() }

func (l *Loop) DeviceState() state.Snapshot { return l.device.Get() }

func (l *Loop) StatsJSON() (string, error) { return l.stats.GetStatsJSON(l.clock.Now()) }

// SetPower is a local power change; it is announced on MQTT.
func (l *Loop) SetPower(on bool) {
	if l.applyPower(on) {
		l.report("status", l.publisher().PublishStatus(on), l.clock.Now())
	}
}

// SetMode is a local mode change; it is announced on MQTT.
func (l *Loop) SetMode(m state.Mode) {
	if l.applyMode(m) {
		l.report("mode", l.publisher().PublishMode(m), l.clock.Now())
	}
}

func (l *Loop) applyPower(on bool) bool {
	if !l.device.SetOn(on) {
		return false
	}
	logger.Infof("💡 Light %s", state.PowerString(on))
	l.ClearDebug()
	return true
}

func (l *Loop) applyMode(m state.Mode) bool {
	if !l.device.SetMode(m) {
		return false
	}
	logger.Infof("🎛️  Mode: %s", m)
	l.ClearDebug()
	return true
}

// SetVolumeRange updates the analyzer and, when accepted, announces and
// persists the new range.
func (l *Loop) SetVolumeRange(minDb, maxDb float64) error {
	if err := l.analyzer.SetVolumeRange(minDb, maxDb); err != nil {
		return err
	}
	now := l.clock.Now()
	l.report("volume range", l.publisher().PublishVolumeRange(l.analyzer.VolumeRange()), now)

	l.mu.Lock()
	store := l.storeRange
	l.mu.Unlock()
	if store != nil {
		if err := store(minDb, maxDb); err != nil {
			logger.Warnf("Volume range applied but not saved: %v", err)
		}
	}
	return nil
}

// HandlePower applies a power command from MQTT. The dashboard already
// knows, so nothing is published back.
func (l *Loop) HandlePower(on bool) { l.applyPower(on) }

// HandleMode applies a mode command from MQTT without echoing it.
func (l *Loop) HandleMode(m state.Mode) { l.applyMode(m) }

func (l *Loop) HandleVolumeRange(minDb, maxDb float64) error {
	return l.SetVolumeRange(minDb, maxDb)
}

// HandleRefresh republishes every retained value.
func (l *Loop) HandleRefresh() {
	now := l.clock.Now()
	dev := l.device.Get()
	pub := l.publisher()

	l.report("status", pub.PublishStatus(dev.On), now)
	l.report("mode", pub.PublishMode(dev.Mode), now)
	l.report("volume range", pub.PublishVolumeRange(l.analyzer.VolumeRange()), now)
	l.report("uptime", pub.PublishUptime(stats.FormatUptime(l.stats.Uptime(now))), now)
}
