package audio

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MaxRangeDecibel is the upper bound accepted for a configured range.
	MaxRangeDecibel = 130.0
	// VULevels is the number of discrete levels published for VU displays.
	VULevels = 8
)

var ErrInvalidRange = errors.New("invalid volume range")

// Anchor is an empirically measured (voltage, decibel) reference point.
type Anchor struct {
	Voltage float64 `yaml:"voltage"`
	Decibel float64 `yaml:"decibel"`
}

// Range is the operator's decibel window used for normalisation.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Validate rejects min >= max, min < 0 and max > 130.
func (r Range) Validate() error {
	switch {
	case r.Min >= r.Max:
		return fmt.Errorf("%w: min %.1f dB must be below max %.1f dB", ErrInvalidRange, r.Min, r.Max)
	case r.Min < 0:
		return fmt.Errorf("%w: min %.1f dB is negative", ErrInvalidRange, r.Min)
	case r.Max > MaxRangeDecibel:
		return fmt.Errorf("%w: max %.1f dB exceeds %.0f dB", ErrInvalidRange, r.Max, MaxRangeDecibel)
	}
	return nil
}

// Calibrator maps a normalised volume onto decibels.
type Calibrator interface {
	Decibel(volume float64, r Range) float64
}

// LogCalibrator interpolates in the log-voltage domain between a quiet and a
// loud anchor. Below the quiet anchor it extrapolates at full slope, above the
// loud anchor at LoudWeight of it so that clipping cannot run away.
type LogCalibrator struct {
	FullScaleVoltage  float64
	NoiseFloorVoltage float64
	Quiet             Anchor
	Loud              Anchor
	FloorDB           float64
	CeilingDB         float64
	LoudWeight        float64
}

func NewLogCalibrator(cfg CalibrationConfig) *LogCalibrator {
	return &LogCalibrator{
		FullScaleVoltage:  cfg.FullScaleVoltage,
		NoiseFloorVoltage: cfg.NoiseFloorVoltage,
		Quiet:             cfg.Quiet,
		Loud:              cfg.Loud,
		FloorDB:           cfg.FloorDB,
		CeilingDB:         cfg.CeilingDB,
		LoudWeight:        cfg.LoudWeight,
	}
}

func (c *LogCalibrator) Decibel(volume float64, _ Range) float64 {
	voltage := volume * c.FullScaleVoltage
	if voltage < c.NoiseFloorVoltage || voltage <= 0 {
		return c.FloorDB
	}

	var db float64
	switch {
	case voltage <= c.Quiet.Voltage:
		db = c.Quiet.Decibel + 20*math.Log10(voltage/c.Quiet.Voltage)
	case voltage >= c.Loud.Voltage:
		db = c.Loud.Decibel + c.LoudWeight*20*math.Log10(voltage/c.Loud.Voltage)
	default:
		span := math.Log10(voltage/c.Quiet.Voltage) / math.Log10(c.Loud.Voltage/c.Quiet.Voltage)
		db = c.Quiet.Decibel + (c.Loud.Decibel-c.Quiet.Decibel)*span
	}

	return math.Max(c.FloorDB, math.Min(c.CeilingDB, db))
}

// LinearCalibrator spreads the volume linearly across the configured range.
type LinearCalibrator struct{}

func (LinearCalibrator) Decibel(volume float64, r Range) float64 {
	return r.Min + (r.Max-r.Min)*clamp01(volume)
}

// NewCalibrator builds the calibrator selected by cfg.Model.
func NewCalibrator(cfg CalibrationConfig) (Calibrator, error) {
	cfg, err := cfg.Resolved()
	if err != nil {
		return nil, err
	}
	switch cfg.Model {
	case ModelLog, "":
		return NewLogCalibrator(cfg), nil
	case ModelLinear:
		return LinearCalibrator{}, nil
	}
	return nil, fmt.Errorf("%w: unknown calibration model %q", ErrInvalidConfig, cfg.Model)
}

// Normalize places db inside r, clamped to [0,1].
func Normalize(db float64, r Range) float64 {
	if r.Max <= r.Min {
		return 0
	}
	return clamp01((db - r.Min) / (r.Max - r.Min))
}

// Quantize maps a normalised value onto 0..levels-1. A full-scale input lands
// on the top level, never on levels itself.
func Quantize(normalized float64, levels int) int {
	if levels <= 0 {
		return 0
	}
	level := int(math.Floor(normalized * float64(levels)))
	return max(0, min(levels-1, level))
}

// ema blends raw into prev with weight alpha.
func ema(prev, raw, alpha float64) float64 {
	return prev*(1-alpha) + raw*alpha
}

// settleEpsilon snaps decaying signals to exact zero so silence stays silent.
const settleEpsilon = 1e-4

func settle(v float64) float64 {
	if v < settleEpsilon {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
