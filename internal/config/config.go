package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/dooshek/auralight/internal/fileops"
	"github.com/dooshek/auralight/internal/types"
	"gopkg.in/yaml.v3"
)

const (
	configFilename = "auralight.yaml"
)

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*types.Config, error) {
	config := types.DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config = config.WithDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Load reads auralight.yaml from the config directory. A missing file yields
// the defaults.
func Load(fileOps fileops.FileOps) (*types.Config, error) {
	if err := fileOps.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	data, err := fileOps.LoadConfig(configFilename)
	if err != nil {
		if errors.Is(err, fileops.ErrConfigNotFound) {
			config := types.DefaultConfig()
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadConfig loads from ~/.config/auralight.
func LoadConfig() (*types.Config, error) {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file operations: %w", err)
	}
	return Load(fileOps)
}

// LoadFile reads an explicit config path given on the command line.
func LoadFile(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Save writes the complete configuration.
func Save(fileOps fileops.FileOps, config *types.Config) error {
	if err := fileOps.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fileOps.SaveConfig(configFilename, data); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// SaveVolumeRange merges a new decibel range into the stored configuration,
// leaving every other setting as the user wrote it.
func SaveVolumeRange(fileOps fileops.FileOps, minDb, maxDb float64) error {
	config, err := Load(fileOps)
	if err != nil {
		return err
	}
	config.Audio.MinDecibel = minDb
	config.Audio.MaxDecibel = maxDb
	if err := config.Validate(); err != nil {
		return err
	}
	return Save(fileOps, config)
}
