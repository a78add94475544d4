// Package monitor draws a live level meter and band bars in the terminal.
package monitor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/dooshek/auralight/internal/audio"
	"github.com/dooshek/auralight/internal/state"
)

// Source is polled once per refresh.
type Source interface {
	Snapshot() audio.Snapshot
	DeviceState() state.Snapshot
}

const (
	meterWidth = 32
	bandGlyphs = " ▁▂▃▄▅▆▇█"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// meterColor follows a VU scale: green, yellow past 60%, red past 85%.
func meterColor(v float64) *color.Color {
	switch {
	case v >= 0.85:
		return red
	case v >= 0.6:
		return yellow
	default:
		return green
	}
}

// Meter renders a [0,1] value as a fixed-width bar.
func Meter(v float64, width int) string {
	v = max(0, min(1, v))
	filled := int(v*float64(width) + 0.5)
	return meterColor(v).Sprint(strings.Repeat("█", filled)) + faint.Sprint(strings.Repeat("░", width-filled))
}

// Bands renders the band vector as one glyph per band.
func Bands(b [audio.NumBands]float64) string {
	glyphs := []rune(bandGlyphs)
	var sb strings.Builder
	for _, v := range b {
		v = max(0, min(1, v))
		sb.WriteRune(glyphs[int(v*float64(len(glyphs)-1)+0.5)])
	}
	return cyan.Sprint(sb.String())
}

// Render formats one status line.
func Render(s audio.Snapshot, dev state.Snapshot) string {
	power := green.Sprint("on ")
	if !dev.On {
		power = faint.Sprint("off")
	}
	status := ""
	if s.Silent {
		status = faint.Sprint(" silent")
	}
	return fmt.Sprintf("%s %-7s %s %s %5.1f dB  L%d  raw %4d  [%s]%s",
		power,
		bold.Sprint(dev.Mode),
		Meter(s.Volume, meterWidth),
		faint.Sprintf("%.0f-%.0f", s.Range.Min, s.Range.Max),
		s.Decibel,
		s.Level,
		s.RawADC,
		Bands(s.Bands),
		status,
	)
}

// Run redraws the status line on w every interval until ctx ends.
func Run(ctx context.Context, src Source, interval time.Duration, w io.Writer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			return
		case <-ticker.C:
			fmt.Fprintf(w, "\r\033[K%s", Render(src.Snapshot(), src.DeviceState()))
		}
	}
}
