// Package light renders analyzer output onto the 72-LED luminaire and
// encodes frames into its MQTT payload.
package light

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dooshek/auralight/internal/audio"
	"github.com/dooshek/auralight/internal/state"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	NumLEDs     = 72
	PayloadSize = NumLEDs * 3

	// Spectrum layout: one column per band, bottom row first.
	Columns = audio.NumBands
	Rows    = NumLEDs / Columns

	// VU layout: concentric rings from the centre outwards.
	Rings    = audio.VULevels
	RingSize = NumLEDs / Rings
)

type RGB struct {
	R, G, B uint8
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func fromColorful(c colorful.Color) RGB {
	r, g, b := c.Clamped().RGB255()
	return RGB{r, g, b}
}

// Frame is one full luminaire image.
type Frame [NumLEDs]RGB

// Payload encodes the frame as R,G,B bytes per LED.
func (f *Frame) Payload() []byte {
	buf := make([]byte, 0, PayloadSize)
	for _, c := range f {
		buf = append(buf, c.R, c.G, c.B)
	}
	return buf
}

// Scale multiplies every LED by brightness/255.
func (f Frame) Scale(brightness uint8) Frame {
	if brightness == 255 {
		return f
	}
	for i, c := range f {
		f[i] = RGB{
			R: uint8(uint16(c.R) * uint16(brightness) / 255),
			G: uint8(uint16(c.G) * uint16(brightness) / 255),
			B: uint8(uint16(c.B) * uint16(brightness) / 255),
		}
	}
	return f
}

func Solid(c RGB) Frame {
	var f Frame
	for i := range f {
		f[i] = c
	}
	return f
}

func Clear() Frame { return Frame{} }

var modeColors = map[state.Mode]RGB{
	state.ModeTimer:   {255, 0, 0},
	state.ModeWeather: {0, 255, 0},
	state.ModeIdle:    {0, 0, 255},
	state.ModeMusic:   {255, 255, 255},
}

// ModeColor is the base colour shown for a mode.
func ModeColor(m state.Mode) RGB {
	if c, ok := modeColors[m]; ok {
		return c
	}
	return RGB{255, 255, 255}
}

// columnHues runs from red at the bass column to violet at the treble one.
var columnHues = func() [Columns]RGB {
	var hues [Columns]RGB
	for i := range hues {
		h := 280 * float64(i) / float64(Columns-1)
		hues[i] = fromColorful(colorful.Hsv(h, 1, 1))
	}
	return hues
}()

// SpectrumIndex maps a band column and row to an LED index.
func SpectrumIndex(column, row int) int {
	return column*Rows + row
}

// Spectrum lights round(band*Rows) LEDs of each column.
func Spectrum(bands [audio.NumBands]float64) Frame {
	var f Frame
	for col, v := range bands {
		lit := int(math.Round(math.Max(0, math.Min(1, v)) * Rows))
		for row := 0; row < lit; row++ {
			f[SpectrumIndex(col, row)] = columnHues[col]
		}
	}
	return f
}

var ringColors = func() [Rings]RGB {
	green, _ := colorful.Hex("#00FF00")
	red, _ := colorful.Hex("#FF0000")
	var c [Rings]RGB
	for i := range c {
		c[i] = fromColorful(green.BlendHcl(red, float64(i)/float64(Rings-1)))
	}
	return c
}()

// VU lights rings in proportion to level/(levels-1). Level 0 is dark and
// the top level fills every ring.
func VU(level, levels int) Frame {
	var f Frame
	if levels <= 1 || level <= 0 {
		return f
	}
	level = min(level, levels-1)
	lit := int(math.Round(float64(level) * Rings / float64(levels-1)))
	for ring := 0; ring < lit; ring++ {
		for j := 0; j < RingSize; j++ {
			f[ring*RingSize+j] = ringColors[ring]
		}
	}
	return f
}

// ParseColor accepts #RRGGBB or RRGGBB.
func ParseColor(s string) (RGB, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return fromColorful(c), nil
}

// ParseIndexed splits an "index:value" debug payload. A payload without an
// index, including one with an empty index before the colon, applies to every
// LED and yields index -1.
func ParseIndexed(s string) (int, string, error) {
	s = strings.TrimSpace(s)
	colon := strings.IndexByte(s, ':')
	switch {
	case colon < 0:
		return -1, s, nil
	case colon == 0:
		return -1, s[1:], nil
	}
	idx, value := s[:colon], s[colon+1:]
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 || i >= NumLEDs {
		return 0, "", fmt.Errorf("invalid LED index %q", idx)
	}
	return i, value, nil
}
