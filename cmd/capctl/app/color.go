package app

import (
	"fmt"
	"image/color"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ColorTheme is the color scheme of a waterfall plot
type ColorTheme string

const (
	EnhancedTheme  ColorTheme = "enhanced"
	ClassicTheme   ColorTheme = "classic"   // blue to red
	GrayscaleTheme ColorTheme = "grayscale" // black to white
	ThermalTheme   ColorTheme = "thermal"   // black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // deep blue to cyan to white

	DefaultColorMapSize = 256
)

const (
	minPowerRange = 30.0 // dB
	lowQuantile   = 0.05
	highQuantile  = 0.95
)

func ParseColorTheme(s string) (ColorTheme, error) {
	t := ColorTheme(strings.ToLower(s))
	switch t {
	case EnhancedTheme, ClassicTheme, GrayscaleTheme, ThermalTheme, MarineTheme:
		return t, nil
	}
	return "", fmt.Errorf("invalid color theme '%s'", s)
}

// PowerBounds is the dBFS range mapped onto the color map
type PowerBounds struct {
	Min  float64
	Max  float64
	Mean float64
}

// NewPowerBounds spans the 5th to 95th percentile of power, widened to at
// least 30 dB, with a 10% margin on both sides
func NewPowerBounds(power []float64) PowerBounds {
	finite := make([]float64, 0, len(power))
	for _, p := range power {
		if !math.IsInf(p, 0) && !math.IsNaN(p) {
			finite = append(finite, p)
		}
	}
	if len(finite) == 0 {
		return PowerBounds{Min: -120, Max: 0, Mean: -60}
	}
	slices.Sort(finite)

	lo := stat.Quantile(lowQuantile, stat.Empirical, finite, nil)
	hi := stat.Quantile(highQuantile, stat.Empirical, finite, nil)
	if hi-lo < minPowerRange {
		center := (hi + lo) / 2
		lo, hi = center-minPowerRange/2, center+minPowerRange/2
	}

	margin := (hi - lo) / 10
	return PowerBounds{
		Min:  lo - margin,
		Max:  hi + margin,
		Mean: stat.Mean(finite, nil),
	}
}

// ColorMapper maps power onto a precomputed gradient
type ColorMapper struct {
	colorMap      []color.Color
	theme         func(float64) color.Color
	size          int
	powerPerIndex float64
	boundsMin     float64
}

func NewColorMapper(theme ColorTheme, bounds PowerBounds) *ColorMapper {
	cm := &ColorMapper{
		colorMap: make([]color.Color, DefaultColorMapSize),
		theme:    getColorTheme(theme),
		size:     DefaultColorMapSize,
	}
	cm.UpdateBounds(bounds)
	return cm
}

func (cm *ColorMapper) UpdateBounds(bounds PowerBounds) {
	cm.boundsMin = bounds.Min
	cm.powerPerIndex = (bounds.Max - bounds.Min) / float64(cm.size-1)

	for i := 0; i < cm.size; i++ {
		cm.colorMap[i] = cm.theme(float64(i) / float64(cm.size-1))
	}
}

// Color returns the color of power, clamped to the bounds
func (cm *ColorMapper) Color(power float64) color.Color {
	if math.IsNaN(power) || math.IsInf(power, -1) || cm.powerPerIndex <= 0 {
		return cm.colorMap[0]
	}

	index := int((power - cm.boundsMin) / cm.powerPerIndex)
	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= cm.size {
		return cm.colorMap[cm.size-1]
	}
	return cm.colorMap[index]
}

// HSV is a color in HSV space, H in degrees, S and V in [0, 1]
type HSV struct {
	H float64
	S float64
	V float64
}

func (hsv HSV) RGB() color.Color {
	if hsv.S <= 0.0 {
		v := uint8(hsv.V * 255)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	h := math.Mod(hsv.H, 360)
	if h < 0 {
		h += 360
	}
	h /= 60

	i := int(h)
	f := h - float64(i)

	v := uint8(hsv.V * 255)
	p := uint8((hsv.V * (1 - hsv.S)) * 255)
	q := uint8((hsv.V * (1 - (hsv.S * f))) * 255)
	t := uint8((hsv.V * (1 - (hsv.S * (1 - f)))) * 255)

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}

func getColorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case ClassicTheme:
		return func(power float64) color.Color {
			return HSV{H: 240 - (power * 240), S: 0.9 + (power * 0.1), V: math.Pow(power, 0.7)}.RGB()
		}

	case GrayscaleTheme:
		return func(power float64) color.Color {
			v := uint8(math.Pow(power, 0.7) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case ThermalTheme:
		return func(power float64) color.Color {
			if power < 0.33 {
				return color.RGBA{R: uint8((power * 3) * 255), A: 255}
			}
			if power < 0.66 {
				return color.RGBA{R: 255, G: uint8(((power - 0.33) * 3) * 255), A: 255}
			}
			return color.RGBA{R: 255, G: 255, B: uint8(math.Min(1, (power-0.66)*3) * 255), A: 255}
		}

	case MarineTheme:
		return func(power float64) color.Color {
			return HSV{H: 240 - (power * 60), S: 1.0 - (power * 0.8), V: 0.3 + (math.Pow(power, 0.6) * 0.7)}.RGB()
		}

	default:
		return func(power float64) color.Color {
			power = math.Max(0, math.Min(1, power))
			enhanced := math.Pow(power, 0.7)

			switch {
			case power < 0.25:
				return HSV{H: 240, S: 1.0, V: math.Min(1.0, enhanced*4)}.RGB()
			case power < 0.5:
				return HSV{H: 240 - ((power - 0.25) * 240), S: 1.0, V: math.Min(1.0, enhanced*1.5)}.RGB()
			case power < 0.75:
				p := (power - 0.5) * 4
				return HSV{H: 180 - (p * 120), S: 1.0, V: math.Min(1.0, enhanced*1.5)}.RGB()
			default:
				p := (power - 0.75) * 4
				return HSV{H: 60 - (p * 60), S: 1.0, V: 1.0}.RGB()
			}
		}
	}
}
