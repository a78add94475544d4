package fileops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/dooshek/auralight/internal/logger"
)

// ErrConfigNotFound is returned when a configuration file does not exist
var ErrConfigNotFound = errors.New("configuration file not found")

// ErrProcessAlreadyRunning is returned when another auralight daemon holds the PID file
var ErrProcessAlreadyRunning = errors.New("auralight process is already running")

// FileOps defines operations on the auralight config directory
type FileOps interface {
	// GetConfigDir returns the full path to the auralight config directory
	GetConfigDir() string

	// GetClipsDir returns the directory searched for replay inputs
	GetClipsDir() string

	// GetLogsDir returns the directory for log files
	GetLogsDir() string

	// GetStatsPath returns the run statistics file
	GetStatsPath() string

	SaveConfig(filename string, data []byte) error
	LoadConfig(filename string) ([]byte, error)

	// ListClips returns the audio files in the clips directory
	ListClips() ([]string, error)

	// ResolveClip maps a bare clip name onto the clips directory. Paths that
	// already exist are returned unchanged.
	ResolveClip(name string) (string, error)

	EnsureDirectories() error

	SavePID() error
	// CheckPID returns ErrProcessAlreadyRunning if another instance is running
	CheckPID() error
	CleanupPID() error
	HandleExit()
}

// DefaultFileOps implements FileOps on a directory tree
type DefaultFileOps struct {
	configDir string
}

// NewDefaultFileOps roots the file operations at ~/.config/auralight
func NewDefaultFileOps() (*DefaultFileOps, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewFileOps(filepath.Join(homeDir, ".config", "auralight")), nil
}

// NewFileOps roots the file operations at dir
func NewFileOps(dir string) *DefaultFileOps {
	return &DefaultFileOps{configDir: dir}
}

func (f *DefaultFileOps) GetConfigDir() string {
	return f.configDir
}

func (f *DefaultFileOps) GetClipsDir() string {
	return filepath.Join(f.configDir, "clips")
}

func (f *DefaultFileOps) GetLogsDir() string {
	return filepath.Join(f.configDir, "logs")
}

func (f *DefaultFileOps) GetStatsPath() string {
	return filepath.Join(f.configDir, "stats.json")
}

func (f *DefaultFileOps) SaveConfig(filename string, data []byte) error {
	path := filepath.Join(f.configDir, filename)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (f *DefaultFileOps) LoadConfig(filename string) ([]byte, error) {
	path := filepath.Join(f.configDir, filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrConfigNotFound
	}
	return os.ReadFile(path)
}

var clipExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".flac": true, ".ogg": true, ".oga": true, ".m4a": true, ".opus": true,
}

func (f *DefaultFileOps) ListClips() ([]string, error) {
	files, err := os.ReadDir(f.GetClipsDir())
	if err != nil {
		return nil, err
	}

	var clips []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if clipExtensions[strings.ToLower(filepath.Ext(file.Name()))] {
			clips = append(clips, file.Name())
		}
	}
	sort.Strings(clips)
	return clips, nil
}

func (f *DefaultFileOps) ResolveClip(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("clip %s: %w", name, os.ErrNotExist)
	}
	path := filepath.Join(f.GetClipsDir(), name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("clip %s not found in working directory or %s: %w", name, f.GetClipsDir(), err)
	}
	return path, nil
}

func (f *DefaultFileOps) EnsureDirectories() error {
	if err := os.MkdirAll(f.configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	for _, dir := range []string{f.GetClipsDir(), f.GetLogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (f *DefaultFileOps) getPIDFilePath() string {
	return filepath.Join(f.configDir, "auralight.pid")
}

func (f *DefaultFileOps) SavePID() error {
	return os.WriteFile(f.getPIDFilePath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (f *DefaultFileOps) CheckPID() error {
	data, err := os.ReadFile(f.getPIDFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("invalid PID in file: %w", err)
	}
	if pid == os.Getpid() {
		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	// Signal 0 probes for existence without delivering anything.
	if err := process.Signal(syscall.Signal(0)); err == nil {
		return ErrProcessAlreadyRunning
	}

	logger.Debug("Found stale PID file, will be overwritten")
	return nil
}

func (f *DefaultFileOps) CleanupPID() error {
	return os.Remove(f.getPIDFilePath())
}

func (f *DefaultFileOps) HandleExit() {
	if err := f.CleanupPID(); err != nil {
		logger.Error("Failed to cleanup PID file on exit", err)
	}
}
