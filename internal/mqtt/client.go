// Package mqtt connects the device to the dashboard broker: it receives
// power, mode and range commands and publishes audio data and LED frames.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dooshek/auralight/internal/audio"
	"github.com/dooshek/auralight/internal/light"
	"github.com/dooshek/auralight/internal/logger"
	"github.com/dooshek/auralight/internal/state"
	"github.com/dooshek/auralight/internal/types"
)

var ErrNotConnected = errors.New("mqtt client not connected")

const (
	statusOnline  = "online"
	statusOffline = "offline"

	publishTimeout       = 2 * time.Second
	connectRetryInterval = 10 * time.Second
)

// Handler receives decoded commands. Calls arrive on paho's goroutines.
type Handler interface {
	HandlePower(on bool)
	HandleMode(m state.Mode)
	HandleVolumeRange(minDb, maxDb float64) error
	HandleDebugColor(index int, c light.RGB)
	HandleDebugBrightness(index int, brightness uint8)
	// HandleDebugClear drops any debug overrides.
	HandleDebugClear()
	// HandleRefresh asks for every retained value to be published again.
	HandleRefresh()
}

// transport is the part of paho.Client the publisher needs.
type transport interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type Client struct {
	cfg     types.MQTTConfig
	topics  Topics
	handler Handler
	version string

	conn   paho.Client
	pub    transport
	frames *logger.Limiter
}

func NewClient(cfg types.MQTTConfig, topics Topics, version string, h Handler) *Client {
	return &Client{
		cfg:     cfg,
		topics:  topics,
		handler: h,
		version: version,
		frames:  logger.Every(10 * time.Second),
	}
}

func (c *Client) Topics() Topics { return c.topics }

// Connect dials the broker and waits up to the connect timeout for the
// session. An unreachable broker is not an error: paho keeps retrying in the
// background, and publishes fail with ErrNotConnected until it is up.
func (c *Client) Connect(ctx context.Context) error {
	clientID := c.cfg.ClientIDPrefix + strconv.FormatInt(time.Now().UnixNano()%0xffff, 16)

	opts := paho.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(clientID).
		SetKeepAlive(time.Duration(c.cfg.KeepAliveSec)*time.Second).
		SetCleanSession(true).
		SetConnectTimeout(c.cfg.ConnectTimeout()).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetWill(c.topics.Status, statusOffline, 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warnf("📡 MQTT connection lost: %v", err)
		})
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username).SetPassword(c.cfg.Password)
	}

	c.conn = paho.NewClient(opts)
	c.pub = c.conn

	logger.Infof("📡 Connecting to MQTT broker %s as %s", c.cfg.Broker, clientID)
	token := c.conn.Connect()
	select {
	case <-token.Done():
	case <-time.After(c.cfg.ConnectTimeout()):
		logger.Warnf("📡 MQTT broker %s not reachable yet, retrying every %v", c.cfg.Broker, connectRetryInterval)
		return nil
	case <-ctx.Done():
		c.conn.Disconnect(0)
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.Broker, err)
	}
	return nil
}

func (c *Client) onConnect(client paho.Client) {
	logger.Infof("📡 MQTT connected, base topic %s", c.topics.Base)

	for _, topic := range c.topics.Subscriptions() {
		token := client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
			c.Dispatch(msg.Topic(), string(msg.Payload()))
		})
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			logger.Errorf("Failed to subscribe to %s", token.Error(), topic)
		}
	}

	if err := c.publish(c.topics.Status, true, statusOnline); err != nil {
		logger.Warnf("Failed to publish online status: %v", err)
	}
	if err := c.publish(c.topics.Version, true, c.version); err != nil {
		logger.Warnf("Failed to publish version: %v", err)
	}
	c.handler.HandleRefresh()
}

// Dispatch routes one incoming message to the handler.
func (c *Client) Dispatch(topic, payload string) {
	logger.Debugf("MQTT [%s]: %s", topic, payload)

	switch topic {
	case c.topics.Status:
		on, err := state.ParsePower(payload)
		if err != nil {
			// Our own online/offline announcements come back on this topic.
			return
		}
		c.handler.HandlePower(on)

	case c.topics.Mode:
		m, err := state.ParseMode(payload)
		if err != nil {
			logger.Warnf("Ignoring mode message: %v", err)
			return
		}
		c.handler.HandleMode(m)

	case c.topics.VolumeRangeSet:
		minDb, maxDb, err := ParseVolumeRange(payload)
		if err != nil {
			logger.Warnf("Ignoring volume range message: %v", err)
			return
		}
		if err := c.handler.HandleVolumeRange(minDb, maxDb); err != nil {
			return
		}

	case c.topics.DebugColor:
		idx, value, err := light.ParseIndexed(payload)
		if err != nil {
			logger.Warnf("Ignoring debug colour: %v", err)
			return
		}
		col, err := light.ParseColor(value)
		if err != nil {
			logger.Warnf("Ignoring debug colour: %v", err)
			return
		}
		c.handler.HandleDebugColor(idx, col)

	case c.topics.DebugBrightness:
		idx, value, err := light.ParseIndexed(payload)
		if err != nil {
			logger.Warnf("Ignoring debug brightness: %v", err)
			return
		}
		b, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || b < 0 || b > 255 {
			logger.Warnf("Ignoring debug brightness %q", value)
			return
		}
		c.handler.HandleDebugBrightness(idx, uint8(b))

	case c.topics.DebugIndex:
		if strings.EqualFold(strings.TrimSpace(payload), "clear") {
			c.handler.HandleDebugClear()
		}

	case c.topics.Refresh:
		if strings.EqualFold(strings.TrimSpace(payload), "info") {
			c.handler.HandleRefresh()
		}
	}
}

func (c *Client) publish(topic string, retained bool, payload interface{}) error {
	if c.pub == nil || !c.pub.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.pub.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (c *Client) PublishAudio(s audio.Snapshot) error {
	return c.publish(c.topics.AudioData, false, FormatAudioData(s))
}

func (c *Client) PublishVolumeRange(r audio.Range) error {
	return c.publish(c.topics.VolumeRange, true, FormatVolumeRange(r))
}

func (c *Client) PublishStatus(on bool) error {
	return c.publish(c.topics.Status, true, state.PowerString(on))
}

func (c *Client) PublishMode(m state.Mode) error {
	return c.publish(c.topics.Mode, true, m.String())
}

func (c *Client) PublishUptime(uptime string) error {
	return c.publish(c.topics.Uptime, true, uptime)
}

// PublishFrame sends a raw 216-byte luminaire payload.
func (c *Client) PublishFrame(payload []byte) error {
	if len(payload) != light.PayloadSize {
		return fmt.Errorf("luminaire payload is %d bytes, want %d", len(payload), light.PayloadSize)
	}
	err := c.publish(c.topics.Luminaire, false, payload)
	if err != nil && c.frames.Allow(time.Now()) {
		logger.Warnf("Dropping luminaire frames: %v", err)
	}
	return err
}

// Connected reports whether the broker session is currently up.
func (c *Client) Connected() bool {
	return c.pub != nil && c.pub.IsConnectionOpen()
}

// Close announces offline and disconnects.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if err := c.publish(c.topics.Status, true, statusOffline); err != nil {
		logger.Debugf("Could not publish offline status: %v", err)
	}
	c.conn.Disconnect(250)
	logger.Infof("📡 MQTT disconnected")
}
