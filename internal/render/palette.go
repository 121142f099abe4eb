package render

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/olivier-w/tftviz/internal/rgb565"
)

// Palette names.
const (
	PaletteHeat  = "heat"
	PaletteSolid = "solid"
)

// heatStops run cool to warm from the bottom of a bar to the top.
var heatStops = []colorful.Color{
	{R: 16.0 / 255, G: 25.0 / 255, B: 70.0 / 255},
	{R: 0, G: 174.0 / 255, B: 1},
	{R: 20.0 / 255, G: 1, B: 161.0 / 255},
	{R: 1, G: 230.0 / 255, B: 92.0 / 255},
	{R: 1, G: 80.0 / 255, B: 60.0 / 255},
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// heatColor blends between the neighbouring stops in CIE-Luv, which keeps
// the perceived brightness ramp smooth.
func heatColor(t float64) colorful.Color {
	seg := clamp01(t) * float64(len(heatStops)-1)
	i := int(seg)
	if i >= len(heatStops)-1 {
		return heatStops[len(heatStops)-1]
	}
	return heatStops[i].BlendLuv(heatStops[i+1], seg-float64(i))
}

func toRGB565(c colorful.Color) rgb565.Color {
	r, g, b := c.Clamped().RGB255()
	return rgb565.RGB(r, g, b)
}

// ParseColor parses a "#rrggbb" or "#rgb" string.
func ParseColor(hex string) (rgb565.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return 0, fmt.Errorf("render: invalid color %q: %w", hex, err)
	}
	return toRGB565(c), nil
}

// rowColors returns one color per pixel row, index 0 being the bottom row.
func rowColors(palette, solid string, height int) ([]rgb565.Color, error) {
	rows := make([]rgb565.Color, height)
	switch palette {
	case PaletteHeat, "":
		for i := range rows {
			t := 0.0
			if height > 1 {
				t = float64(i) / float64(height-1)
			}
			rows[i] = toRGB565(heatColor(t))
		}
	case PaletteSolid:
		c, err := ParseColor(solid)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			rows[i] = c
		}
	default:
		return nil, fmt.Errorf("render: unknown palette %q", palette)
	}
	return rows, nil
}
