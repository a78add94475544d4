package audio

import (
	"errors"
	"fmt"
	"time"
)

// Path selects how a capture cycle is turned into volume and bands.
type Path string

const (
	PathFFT      Path = "fft"
	PathEnvelope Path = "envelope"
)

const (
	StrategySpectrum    = "spectrum"
	StrategySynthesized = "synthesized"

	ModelLog    = "log"
	ModelLinear = "linear"
)

// Config holds every tunable of the analysis pipeline.
type Config struct {
	Path             Path    `yaml:"path"`              // "fft" or "envelope"
	SampleRate       int     `yaml:"sample_rate"`       // Hz, FFT burst sampling frequency
	FFTSize          int     `yaml:"fft_size"`          // samples per burst, power of two
	SampleWindowMs   int     `yaml:"sample_window_ms"`  // envelope window length
	TickIntervalMs   int     `yaml:"tick_interval_ms"`  // minimum spacing between analysis cycles
	ADCBits          int     `yaml:"adc_bits"`          // 10 = 0..1023
	NoiseThreshold   int     `yaml:"noise_threshold"`   // peak-to-peak counts treated as silence
	ReferenceVoltage float64 `yaml:"reference_voltage"` // ADC reference, volts
	RMSFullScale     float64 `yaml:"rms_full_scale"`    // spectral RMS mapped to volume 1.0
	VolumeAlpha      float64 `yaml:"volume_alpha"`      // EMA weight of the newest volume
	MinDecibel       float64 `yaml:"min_decibel"`
	MaxDecibel       float64 `yaml:"max_decibel"`
	DebugIntervalMs  int     `yaml:"debug_interval_ms"`
	WarnIntervalMs   int     `yaml:"warn_interval_ms"`

	Calibration CalibrationConfig `yaml:"calibration"`
	Bands       BandsConfig       `yaml:"bands"`
}

// CalibrationConfig describes the decibel model. When Preset is set its anchors
// replace Quiet and Loud.
type CalibrationConfig struct {
	Model             string  `yaml:"model"` // "log" or "linear"
	Preset            string  `yaml:"preset"`
	FullScaleVoltage  float64 `yaml:"full_scale_voltage"`
	NoiseFloorVoltage float64 `yaml:"noise_floor_voltage"`
	Quiet             Anchor  `yaml:"quiet"`
	Loud              Anchor  `yaml:"loud"`
	FloorDB           float64 `yaml:"floor_db"`
	CeilingDB         float64 `yaml:"ceiling_db"`
	LoudWeight        float64 `yaml:"loud_weight"`
}

// BandsConfig configures the band estimation strategy.
type BandsConfig struct {
	Strategy  string     `yaml:"strategy"` // "spectrum" or "synthesized"
	Alpha     float64    `yaml:"alpha"`
	MinSignal float64    `yaml:"min_signal"`
	Decay     float64    `yaml:"decay"` // spectrum only; tiers carry their own
	Groups    []BinGroup `yaml:"groups"`
	Tiers     []Tier     `yaml:"tiers"`
	Seed      uint64     `yaml:"seed"`
}

var ErrInvalidConfig = errors.New("invalid audio configuration")

// DefaultConfig mirrors the FFT firmware build: 64 samples at 4 kHz, 62.5 Hz per bin.
func DefaultConfig() Config {
	return Config{
		Path:             PathFFT,
		SampleRate:       4000,
		FFTSize:          64,
		SampleWindowMs:   50,
		TickIntervalMs:   40,
		ADCBits:          10,
		NoiseThreshold:   5,
		ReferenceVoltage: 3.3,
		RMSFullScale:     500,
		VolumeAlpha:      0.3,
		MinDecibel:       30,
		MaxDecibel:       120,
		DebugIntervalMs:  2000,
		WarnIntervalMs:   10000,
		Calibration:      DefaultCalibration(),
		Bands: BandsConfig{
			Strategy:  StrategySpectrum,
			Alpha:     0.4,
			MinSignal: 10,
			Decay:     1.0,
			Groups:    DefaultBinGroups(),
			Tiers:     DefaultTiers(),
			Seed:      1,
		},
	}
}

// DefaultCalibration is the log model with the FFT build's anchors.
func DefaultCalibration() CalibrationConfig {
	preset := calibrationPresets["fft"]
	return CalibrationConfig{
		Model:             ModelLog,
		FullScaleVoltage:  3.3,
		NoiseFloorVoltage: 0.005,
		Quiet:             preset[0],
		Loud:              preset[1],
		FloorDB:           20,
		CeilingDB:         120,
		LoudWeight:        0.5,
	}
}

// Anchor pairs measured on three hardware revisions.
var calibrationPresets = map[string][2]Anchor{
	"fft":      {{Voltage: 0.17, Decibel: 30}, {Voltage: 2.50, Decibel: 65}},
	"envelope": {{Voltage: 0.17, Decibel: 35}, {Voltage: 2.48, Decibel: 80}},
	"bench":    {{Voltage: 0.05, Decibel: 40}, {Voltage: 1.50, Decibel: 90}},
}

// Resolved returns the calibration with its preset, if any, applied.
func (c CalibrationConfig) Resolved() (CalibrationConfig, error) {
	if c.Preset == "" {
		return c, nil
	}
	anchors, ok := calibrationPresets[c.Preset]
	if !ok {
		return c, fmt.Errorf("%w: unknown calibration preset %q", ErrInvalidConfig, c.Preset)
	}
	c.Quiet, c.Loud = anchors[0], anchors[1]
	return c, nil
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

func (c Config) SampleWindow() time.Duration {
	return time.Duration(c.SampleWindowMs) * time.Millisecond
}

// SamplePeriod is the spacing between two burst samples, rounded to the microsecond.
func (c Config) SamplePeriod() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	us := (1_000_000 + c.SampleRate/2) / c.SampleRate
	return time.Duration(us) * time.Microsecond
}

// ADCMax is the highest code the converter can produce.
func (c Config) ADCMax() int {
	return 1<<c.ADCBits - 1
}

// ADCFullScale is the number of codes, the divisor for code-to-voltage conversion.
func (c Config) ADCFullScale() float64 {
	return float64(int(1) << c.ADCBits)
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	if err := (Range{Min: c.MinDecibel, Max: c.MaxDecibel}).Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.ADCBits < 4 || c.ADCBits > 16 {
		return fmt.Errorf("%w: adc_bits %d out of range 4..16", ErrInvalidConfig, c.ADCBits)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample_rate must be positive", ErrInvalidConfig)
	}
	if c.TickIntervalMs <= 0 {
		return fmt.Errorf("%w: tick_interval_ms must be positive", ErrInvalidConfig)
	}
	if c.VolumeAlpha <= 0 || c.VolumeAlpha > 1 {
		return fmt.Errorf("%w: volume_alpha %.2f not in (0,1]", ErrInvalidConfig, c.VolumeAlpha)
	}
	if c.ReferenceVoltage <= 0 {
		return fmt.Errorf("%w: reference_voltage must be positive", ErrInvalidConfig)
	}

	switch c.Path {
	case PathFFT:
		if c.FFTSize < 16 || c.FFTSize&(c.FFTSize-1) != 0 {
			return fmt.Errorf("%w: fft_size %d is not a power of two >= 16", ErrInvalidConfig, c.FFTSize)
		}
		if c.RMSFullScale <= 0 {
			return fmt.Errorf("%w: rms_full_scale must be positive", ErrInvalidConfig)
		}
	case PathEnvelope:
		if c.SampleWindowMs <= 0 {
			return fmt.Errorf("%w: sample_window_ms must be positive", ErrInvalidConfig)
		}
		if c.Bands.Strategy == StrategySpectrum {
			return fmt.Errorf("%w: spectrum bands need the fft path", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown path %q", ErrInvalidConfig, c.Path)
	}

	cal, err := c.Calibration.Resolved()
	if err != nil {
		return err
	}
	switch cal.Model {
	case ModelLog:
		if cal.Quiet.Voltage <= 0 || cal.Loud.Voltage <= cal.Quiet.Voltage {
			return fmt.Errorf("%w: calibration anchors must satisfy 0 < quiet < loud voltage", ErrInvalidConfig)
		}
		if cal.Loud.Decibel < cal.Quiet.Decibel {
			return fmt.Errorf("%w: loud anchor decibel below quiet anchor", ErrInvalidConfig)
		}
		if cal.FullScaleVoltage <= 0 || cal.FloorDB >= cal.CeilingDB {
			return fmt.Errorf("%w: calibration full scale or clamp range invalid", ErrInvalidConfig)
		}
	case ModelLinear:
	default:
		return fmt.Errorf("%w: unknown calibration model %q", ErrInvalidConfig, cal.Model)
	}

	switch c.Bands.Strategy {
	case StrategySpectrum:
		if c.Bands.Alpha <= 0 || c.Bands.Alpha > 1 {
			return fmt.Errorf("%w: bands.alpha %.2f not in (0,1]", ErrInvalidConfig, c.Bands.Alpha)
		}
		if c.Bands.Decay <= 0 || c.Bands.Decay > 1 {
			return fmt.Errorf("%w: bands.decay %.2f not in (0,1]", ErrInvalidConfig, c.Bands.Decay)
		}
		if err := validateGroups(c.Bands.Groups, c.FFTSize); err != nil {
			return err
		}
	case StrategySynthesized:
		if err := validateTiers(c.Bands.Tiers); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown band strategy %q", ErrInvalidConfig, c.Bands.Strategy)
	}

	return nil
}

func validateGroups(groups []BinGroup, fftSize int) error {
	if len(groups) != NumBands {
		return fmt.Errorf("%w: need %d bin groups, got %d", ErrInvalidConfig, NumBands, len(groups))
	}
	for i, g := range groups {
		if g.First < firstUsableBin || g.Last < g.First || g.Last >= fftSize/2 {
			return fmt.Errorf("%w: bin group %d (%d-%d) outside %d..%d", ErrInvalidConfig, i, g.First, g.Last, firstUsableBin, fftSize/2-1)
		}
	}
	return nil
}

func validateTiers(tiers []Tier) error {
	next := 0
	for _, t := range tiers {
		if t.First != next || t.Last < t.First {
			return fmt.Errorf("%w: tier %q must start at band %d", ErrInvalidConfig, t.Name, next)
		}
		if t.Alpha <= 0 || t.Alpha > 1 {
			return fmt.Errorf("%w: tier %q alpha %.2f not in (0,1]", ErrInvalidConfig, t.Name, t.Alpha)
		}
		if t.JitterMin <= 0 || t.JitterMax < t.JitterMin {
			return fmt.Errorf("%w: tier %q jitter range invalid", ErrInvalidConfig, t.Name)
		}
		if t.Decay <= 0 || t.Decay >= 1 {
			return fmt.Errorf("%w: tier %q decay %.2f not in (0,1)", ErrInvalidConfig, t.Name, t.Decay)
		}
		next = t.Last + 1
	}
	if next != NumBands {
		return fmt.Errorf("%w: tiers cover %d of %d bands", ErrInvalidConfig, next, NumBands)
	}
	return nil
}
