package audio

import (
	"fmt"

	"github.com/dooshek/auralight/internal/logger"
	"github.com/gen2brain/malgo"
)

// MicSource captures the default input device as mono S16 PCM and exposes it
// as converter codes. The device clock paces the samples, so bursts read from
// it are uniformly spaced without any pacing on our side.
type MicSource struct {
	*ringSource
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	bits    int
	scratch []int
}

// NewMicSource opens the default capture device at sampleRate.
func NewMicSource(sampleRate, bits int) (*MicSource, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	m := &MicSource{
		ringSource: newRingSource(sampleRate/2, sampleRate, 1<<(bits-1)),
		ctx:        ctx,
		bits:       bits,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, inputBuffer []byte, frameCount uint32) {
			m.onData(inputBuffer, frameCount)
		},
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	m.device = device

	return m, nil
}

func (m *MicSource) onData(input []byte, frameCount uint32) {
	n := min(int(frameCount), len(input)/2)
	if cap(m.scratch) < n {
		m.scratch = make([]int, n)
	}
	samples := m.scratch[:n]
	for i := range samples {
		s := int16(input[2*i]) | int16(input[2*i+1])<<8
		samples[i] = PCM16ToADC(s, m.bits)
	}
	m.push(samples)
}

// Start begins capturing.
func (m *MicSource) Start() error {
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	logger.Info("🎙️  Microphone capture started")
	return nil
}

// Close stops the device and releases the audio context.
func (m *MicSource) Close() {
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
}
