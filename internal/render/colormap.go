package render

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme selects the palette used for spectrogram intensity.
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // blue to red hue sweep
	JetTheme       ColorTheme = "jet"       // dark blue, cyan, yellow, dark red
	GrayscaleTheme ColorTheme = "grayscale" // black to white
	ThermalTheme   ColorTheme = "thermal"   // black, red, yellow, white

	DefaultColorMapSize = 256
)

// ParseTheme resolves a theme name from configuration.
func ParseTheme(s string) (ColorTheme, error) {
	switch t := ColorTheme(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return JetTheme, nil
	case ClassicTheme, JetTheme, GrayscaleTheme, ThermalTheme:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported color theme %q", s)
	}
}

// Bounds is the value range mapped onto the palette.
type Bounds struct {
	Min float64
	Max float64
}

// ColorMapper converts values to colors through a pre-computed lookup table.
type ColorMapper struct {
	colorMap    []color.RGBA
	theme       ColorTheme
	boundsMin   float64
	boundsRange float64
}

// NewColorMapper builds a DefaultColorMapSize lookup table for theme.
func NewColorMapper(theme ColorTheme, bounds Bounds) *ColorMapper {
	fn := themeFunc(theme)
	cm := &ColorMapper{
		colorMap: make([]color.RGBA, DefaultColorMapSize),
		theme:    theme,
	}
	for i := range cm.colorMap {
		c := fn(float64(i) / float64(DefaultColorMapSize-1)).Clamped()
		r, g, b := c.RGB255()
		cm.colorMap[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds changes the mapped value range.
func (cm *ColorMapper) UpdateBounds(bounds Bounds) {
	cm.boundsMin = bounds.Min
	cm.boundsRange = bounds.Max - bounds.Min
}

// Theme returns the palette name.
func (cm *ColorMapper) Theme() ColorTheme { return cm.theme }

// Color returns the palette entry for v, clamped to the bounds.
func (cm *ColorMapper) Color(v float64) color.RGBA {
	if math.IsNaN(v) || cm.boundsRange <= 0 {
		return cm.colorMap[0]
	}
	idx := int((v - cm.boundsMin) / cm.boundsRange * float64(len(cm.colorMap)-1))
	if idx < 0 {
		idx = 0
	} else if idx >= len(cm.colorMap) {
		idx = len(cm.colorMap) - 1
	}
	return cm.colorMap[idx]
}

func themeFunc(theme ColorTheme) func(float64) colorful.Color {
	switch theme {
	case ClassicTheme:
		return func(p float64) colorful.Color {
			return colorful.Hsv(240-p*240, 0.9+p*0.1, math.Pow(p, 0.7))
		}
	case GrayscaleTheme:
		return func(p float64) colorful.Color {
			v := math.Pow(p, 0.7)
			return colorful.Color{R: v, G: v, B: v}
		}
	case ThermalTheme:
		black := colorful.Color{}
		red := colorful.Color{R: 1}
		yellow := colorful.Color{R: 1, G: 1}
		white := colorful.Color{R: 1, G: 1, B: 1}
		return func(p float64) colorful.Color {
			switch {
			case p < 1.0/3:
				return black.BlendRgb(red, p*3)
			case p < 2.0/3:
				return red.BlendRgb(yellow, (p-1.0/3)*3)
			default:
				return yellow.BlendRgb(white, (p-2.0/3)*3)
			}
		}
	default:
		stops := []colorful.Color{
			{R: 0, G: 0, B: 0.5},
			{R: 0, G: 0, B: 1},
			{R: 0, G: 1, B: 1},
			{R: 1, G: 1, B: 0},
			{R: 1, G: 0, B: 0},
			{R: 0.5, G: 0, B: 0},
		}
		return func(p float64) colorful.Color {
			p = math.Max(0, math.Min(1, p))
			pos := p * float64(len(stops)-1)
			i := int(pos)
			if i >= len(stops)-1 {
				return stops[len(stops)-1]
			}
			return stops[i].BlendRgb(stops[i+1], pos-float64(i))
		}
	}
}
