package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dooshek/auralight/internal/audio"
	"github.com/dooshek/auralight/internal/logger"
)

// Stats holds the analyzer counters accumulated over every run
type Stats struct {
	Runs          int     `json:"runs"`
	Cycles        uint64  `json:"cycles"`
	SilentCycles  uint64  `json:"silent_cycles"`
	PeakDecibel   float64 `json:"peak_decibel"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Manager counts analysis cycles and persists the totals
type Manager struct {
	stats    Stats
	filePath string
	started  time.Time
	mu       sync.Mutex
}

// NewManager loads existing totals from filePath and starts a new run at now
func NewManager(filePath string, now time.Time) *Manager {
	m := &Manager{filePath: filePath, started: now}

	if err := m.load(); err != nil {
		logger.Debugf("Could not load stats (will start fresh): %v", err)
	}
	m.stats.Runs++
	return m
}

// Record counts one completed analysis cycle
func (m *Manager) Record(s audio.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Cycles++
	if s.Silent {
		m.stats.SilentCycles++
	}
	if s.Decibel > m.stats.PeakDecibel {
		m.stats.PeakDecibel = s.Decibel
	}
}

// Uptime is the length of the current run
func (m *Manager) Uptime(now time.Time) time.Duration {
	return now.Sub(m.started)
}

// FormatUptime renders a duration as "1h 2m 3s".
func FormatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%dh %dm %ds", secs/3600, (secs%3600)/60, secs%60)
}

// GetStats returns the totals including the current run's uptime
func (m *Manager) GetStats(now time.Time) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats
	s.UptimeSeconds += m.Uptime(now).Seconds()
	return s
}

// GetStatsJSON returns statistics as a JSON string (for D-Bus)
func (m *Manager) GetStatsJSON(now time.Time) (string, error) {
	data, err := json.Marshal(m.GetStats(now))
	if err != nil {
		return "", fmt.Errorf("failed to marshal stats to JSON: %w", err)
	}
	return string(data), nil
}

// Save folds the current run's uptime into the totals and writes them out.
// Calling it again later only adds the uptime since the previous save.
func (m *Manager) Save(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.UptimeSeconds += now.Sub(m.started).Seconds()
	m.started = now
	return m.save()
}

// Reset clears all statistics and persists empty state
func (m *Manager) Reset(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats = Stats{Runs: 1}
	m.started = now
	if err := m.save(); err != nil {
		return fmt.Errorf("failed to save reset stats: %w", err)
	}
	return nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debugf("Stats file not found, starting fresh: %s", m.filePath)
			return nil
		}
		return fmt.Errorf("failed to read stats file: %w", err)
	}

	if err := json.Unmarshal(data, &m.stats); err != nil {
		return fmt.Errorf("failed to unmarshal stats: %w", err)
	}

	logger.Debugf("Loaded stats from %s", m.filePath)
	return nil
}

func (m *Manager) save() error {
	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create stats directory: %w", err)
	}

	data, err := json.MarshalIndent(m.stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	// Write atomically by writing to temp file and renaming
	tempFile := m.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp stats file: %w", err)
	}
	if err := os.Rename(tempFile, m.filePath); err != nil {
		return fmt.Errorf("failed to rename temp stats file: %w", err)
	}

	logger.Debugf("Saved stats to %s", m.filePath)
	return nil
}
