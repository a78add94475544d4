package mqtt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dooshek/auralight/internal/audio"
)

// Topics is the fixed topic layout under student/CASA0014/<user>.
type Topics struct {
	Base string

	// Subscribed
	Status          string
	Mode            string
	VolumeRangeSet  string
	DebugColor      string
	DebugBrightness string
	DebugIndex      string
	Refresh         string

	// Published
	AudioData   string
	VolumeRange string
	Uptime      string
	Version     string
	Luminaire   string
}

func NewTopics(root, user, luminaireID string) Topics {
	base := root + "/" + user
	return Topics{
		Base:            base,
		Status:          base + "/status",
		Mode:            base + "/mode",
		VolumeRangeSet:  base + "/audio/volume_range/set",
		DebugColor:      base + "/debug/color",
		DebugBrightness: base + "/debug/brightness",
		DebugIndex:      base + "/debug/index",
		Refresh:         base + "/refresh",
		AudioData:       base + "/info/audio/data",
		VolumeRange:     base + "/info/audio/volume_range",
		Uptime:          base + "/info/system/uptime",
		Version:         base + "/info/system/version",
		Luminaire:       root + "/luminaire/" + luminaireID,
	}
}

// Subscriptions lists the topics the device listens on.
func (t Topics) Subscriptions() []string {
	return []string{t.Status, t.Mode, t.VolumeRangeSet, t.DebugColor, t.DebugBrightness, t.DebugIndex, t.Refresh}
}

// FormatAudioData renders "raw,decibel,vuLevel,b0,...,b11" for the dashboard.
func FormatAudioData(s audio.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d,%.1f,%d", s.RawADC, s.Decibel, s.Level)
	for _, b := range s.Bands {
		fmt.Fprintf(&sb, ",%.2f", b)
	}
	return sb.String()
}

// FormatVolumeRange renders "min,max".
func FormatVolumeRange(r audio.Range) string {
	return strconv.FormatFloat(r.Min, 'f', -1, 64) + "," + strconv.FormatFloat(r.Max, 'f', -1, 64)
}

// ParseVolumeRange reads "min,max". Range limits are checked by the analyzer.
func ParseVolumeRange(s string) (float64, float64, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return 0, 0, fmt.Errorf("volume range %q is not min,max", s)
	}
	minDb, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("volume range min: %w", err)
	}
	maxDb, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("volume range max: %w", err)
	}
	return minDb, maxDb, nil
}
