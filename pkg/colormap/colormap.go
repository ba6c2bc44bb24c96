// Package colormap provides the colorscales used to paint scatter points.
package colormap

import (
	"fmt"
	"image/color"
	"sort"
	"strings"
)

// Colormap maps normalized values [0, 1] to colors.
type Colormap interface {
	Name() string
	At(t float64) color.RGBA
}

// Stop is one anchor of a colorscale.
type Stop struct {
	Pos   float64
	Color color.RGBA
}

// Scale interpolates linearly between ordered stops.
type Scale struct {
	name  string
	stops []Stop
}

// NewScale builds a scale from stops ordered by position from 0 to 1.
func NewScale(name string, stops ...Stop) Scale {
	return Scale{name: name, stops: stops}
}

func evenly(name string, colors ...color.RGBA) Scale {
	stops := make([]Stop, len(colors))
	for i, c := range colors {
		stops[i] = Stop{Pos: float64(i) / float64(len(colors)-1), Color: c}
	}
	return Scale{name: name, stops: stops}
}

// Name returns the scale's registry name.
func (s Scale) Name() string {
	return s.name
}

// At returns the color at position t (0-1).
func (s Scale) At(t float64) color.RGBA {
	if t <= s.stops[0].Pos {
		return s.stops[0].Color
	}
	last := s.stops[len(s.stops)-1]
	if t >= last.Pos {
		return last.Color
	}

	upper := sort.Search(len(s.stops), func(i int) bool { return s.stops[i].Pos >= t })
	lo, hi := s.stops[upper-1], s.stops[upper]
	return interpolate(lo.Color, hi.Color, (t-lo.Pos)/(hi.Pos-lo.Pos))
}

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c1.R) + t*(float64(c2.R)-float64(c1.R)) + 0.5),
		G: uint8(float64(c1.G) + t*(float64(c2.G)-float64(c1.G)) + 0.5),
		B: uint8(float64(c1.B) + t*(float64(c2.B)-float64(c1.B)) + 0.5),
		A: 255,
	}
}

// Jet is the Plotly "Jet" colorscale.
var Jet = NewScale("jet",
	Stop{0, color.RGBA{0, 0, 131, 255}},
	Stop{0.125, color.RGBA{0, 60, 170, 255}},
	Stop{0.375, color.RGBA{5, 255, 255, 255}},
	Stop{0.625, color.RGBA{255, 255, 0, 255}},
	Stop{0.875, color.RGBA{250, 0, 0, 255}},
	Stop{1, color.RGBA{128, 0, 0, 255}},
)

// Viridis colormap (matplotlib viridis)
var Viridis = evenly("viridis",
	color.RGBA{68, 1, 84, 255},
	color.RGBA{72, 35, 116, 255},
	color.RGBA{64, 67, 135, 255},
	color.RGBA{52, 94, 141, 255},
	color.RGBA{41, 120, 142, 255},
	color.RGBA{32, 144, 140, 255},
	color.RGBA{34, 167, 132, 255},
	color.RGBA{68, 190, 112, 255},
	color.RGBA{121, 209, 81, 255},
	color.RGBA{189, 222, 38, 255},
	color.RGBA{253, 231, 37, 255},
)

// Plasma colormap
var Plasma = evenly("plasma",
	color.RGBA{13, 8, 135, 255},
	color.RGBA{75, 3, 161, 255},
	color.RGBA{125, 3, 168, 255},
	color.RGBA{168, 34, 150, 255},
	color.RGBA{203, 70, 121, 255},
	color.RGBA{229, 107, 93, 255},
	color.RGBA{248, 148, 65, 255},
	color.RGBA{253, 195, 40, 255},
	color.RGBA{240, 249, 33, 255},
)

// Muted is the color of points outside a gene focus.
var Muted = color.RGBA{204, 204, 204, 255}

// Selected rings the selected point.
var Selected = color.RGBA{0, 0, 0, 255}

var registry = map[string]Colormap{
	Jet.Name():     Jet,
	Viridis.Name(): Viridis,
	Plasma.Name():  Plasma,
}

// ByName returns a registered colorscale. Names are case-insensitive.
func ByName(name string) (Colormap, error) {
	cm, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown colorscale %q", name)
	}
	return cm, nil
}

// Hex formats a color as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Normalize maps v from [min, max] to [0, 1]. A degenerate range maps to 0.5.
func Normalize(v, min, max float64) float64 {
	if max <= min {
		return 0.5
	}
	return (v - min) / (max - min)
}
