package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/dooshek/auralight/internal/audio"
)

// Luminaire rendering styles for music mode.
const (
	StyleSpectrum = "spectrum"
	StyleVU       = "vu"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type DeviceConfig struct {
	ID      string `yaml:"id"`      // MQTT user segment of the topic base
	Version string `yaml:"version"` // published on /info/system/version
	Mode    string `yaml:"mode"`    // start-up mode
	On      bool   `yaml:"on"`      // start-up power state
}

type MQTTConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Broker           string `yaml:"broker"` // tcp://host:1883
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	ClientIDPrefix   string `yaml:"client_id_prefix"`
	TopicRoot        string `yaml:"topic_root"`
	KeepAliveSec     int    `yaml:"keepalive_sec"`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"`
	AudioIntervalMs  int    `yaml:"audio_interval_ms"`
	UptimeIntervalMs int    `yaml:"uptime_interval_ms"`
}

type ServerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	IntervalMs int    `yaml:"interval_ms"`
}

type DBusConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LuminaireConfig struct {
	ID                string `yaml:"id"`
	Style             string `yaml:"style"`      // "spectrum" or "vu"
	Brightness        int    `yaml:"brightness"` // 0..255
	PublishIntervalMs int    `yaml:"publish_interval_ms"`
	BreathStepMs      int    `yaml:"breath_step_ms"`
}

type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Audio     audio.Config    `yaml:"audio"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Server    ServerConfig    `yaml:"server"`
	DBus      DBusConfig      `yaml:"dbus"`
	Luminaire LuminaireConfig `yaml:"luminaire"`
}

// DefaultConfig is what a fresh install runs with. Loaded YAML is applied on
// top of it, so a file only needs the values it changes.
func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			ID:      "auralight",
			Version: "2.0.0",
			Mode:    "music",
			On:      true,
		},
		Audio: audio.DefaultConfig(),
		MQTT: MQTTConfig{
			Enabled:          true,
			Broker:           "tcp://localhost:1883",
			ClientIDPrefix:   "AuraLight_",
			TopicRoot:        "student/CASA0014",
			KeepAliveSec:     60,
			ConnectTimeoutMs: 5000,
			AudioIntervalMs:  200,
			UptimeIntervalMs: 60000,
		},
		Server: ServerConfig{
			Enabled:    true,
			Addr:       "127.0.0.1:8765",
			IntervalMs: 100,
		},
		DBus: DBusConfig{Enabled: true},
		Luminaire: LuminaireConfig{
			ID:                "1",
			Style:             StyleSpectrum,
			Brightness:        255,
			PublishIntervalMs: 50,
			BreathStepMs:      20,
		},
	}
}

// WithDefaults fills every zero interval and address with its default, the
// way an older config file without those keys should behave.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()

	if c.Device.ID == "" {
		c.Device.ID = d.Device.ID
	}
	if c.Device.Version == "" {
		c.Device.Version = d.Device.Version
	}
	if c.Device.Mode == "" {
		c.Device.Mode = d.Device.Mode
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = d.MQTT.Broker
	}
	if c.MQTT.ClientIDPrefix == "" {
		c.MQTT.ClientIDPrefix = d.MQTT.ClientIDPrefix
	}
	if c.MQTT.TopicRoot == "" {
		c.MQTT.TopicRoot = d.MQTT.TopicRoot
	}
	if c.MQTT.KeepAliveSec == 0 {
		c.MQTT.KeepAliveSec = d.MQTT.KeepAliveSec
	}
	if c.MQTT.ConnectTimeoutMs == 0 {
		c.MQTT.ConnectTimeoutMs = d.MQTT.ConnectTimeoutMs
	}
	if c.MQTT.AudioIntervalMs == 0 {
		c.MQTT.AudioIntervalMs = d.MQTT.AudioIntervalMs
	}
	if c.MQTT.UptimeIntervalMs == 0 {
		c.MQTT.UptimeIntervalMs = d.MQTT.UptimeIntervalMs
	}

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.IntervalMs == 0 {
		c.Server.IntervalMs = d.Server.IntervalMs
	}

	if c.Luminaire.ID == "" {
		c.Luminaire.ID = d.Luminaire.ID
	}
	if c.Luminaire.Style == "" {
		c.Luminaire.Style = d.Luminaire.Style
	}
	if c.Luminaire.PublishIntervalMs == 0 {
		c.Luminaire.PublishIntervalMs = d.Luminaire.PublishIntervalMs
	}
	if c.Luminaire.BreathStepMs == 0 {
		c.Luminaire.BreathStepMs = d.Luminaire.BreathStepMs
	}

	return c
}

// Validate checks the whole configuration, including the audio pipeline.
func (c Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return err
	}
	switch c.Luminaire.Style {
	case StyleSpectrum, StyleVU:
	default:
		return fmt.Errorf("%w: unknown luminaire style %q", ErrInvalidConfig, c.Luminaire.Style)
	}
	if c.Luminaire.Brightness < 0 || c.Luminaire.Brightness > 255 {
		return fmt.Errorf("%w: luminaire brightness %d not in 0..255", ErrInvalidConfig, c.Luminaire.Brightness)
	}
	if c.Luminaire.PublishIntervalMs <= 0 || c.Luminaire.BreathStepMs <= 0 {
		return fmt.Errorf("%w: luminaire intervals must be positive", ErrInvalidConfig)
	}
	if c.MQTT.Enabled && (c.MQTT.AudioIntervalMs <= 0 || c.MQTT.UptimeIntervalMs <= 0) {
		return fmt.Errorf("%w: mqtt publish intervals must be positive", ErrInvalidConfig)
	}
	if c.Server.Enabled && c.Server.IntervalMs <= 0 {
		return fmt.Errorf("%w: server interval must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c MQTTConfig) AudioInterval() time.Duration {
	return time.Duration(c.AudioIntervalMs) * time.Millisecond
}

func (c MQTTConfig) UptimeInterval() time.Duration {
	return time.Duration(c.UptimeIntervalMs) * time.Millisecond
}

func (c MQTTConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

func (c ServerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

func (c LuminaireConfig) PublishInterval() time.Duration {
	return time.Duration(c.PublishIntervalMs) * time.Millisecond
}

func (c LuminaireConfig) BreathStep() time.Duration {
	return time.Duration(c.BreathStepMs) * time.Millisecond
}
