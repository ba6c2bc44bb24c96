// Package render draws iteration scatter plots using fogleman/gg.
package render

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"sync"

	"github.com/fogleman/gg"

	"github.com/cellcomm/cellan/internal/viewstate"
	"github.com/cellcomm/cellan/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	Size int

	// Padding is the margin in pixels. Zero selects the default and a
	// negative value disables it.
	Padding           float64
	DefaultColorscale string
}

// ScatterRenderer renders point sets to PNG images.
type ScatterRenderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewScatterRenderer creates a new scatter renderer.
func NewScatterRenderer(cfg Config) *ScatterRenderer {
	if cfg.Size <= 0 {
		cfg.Size = 512
	}
	if cfg.Padding < 0 {
		cfg.Padding = 0
	} else if cfg.Padding == 0 {
		cfg.Padding = 8
	}
	if _, err := colormap.ByName(cfg.DefaultColorscale); err != nil {
		cfg.DefaultColorscale = colormap.Jet.Name()
	}

	return &ScatterRenderer{
		config: cfg,
		contextPool: sync.Pool{
			New: func() interface{} {
				return gg.NewContext(cfg.Size, cfg.Size)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}
}

// Size returns the edge length of rendered images in pixels.
func (r *ScatterRenderer) Size() int {
	return r.config.Size
}

// Layout returns the data-to-pixel mapping for points.
func (r *ScatterRenderer) Layout(points []viewstate.Point) Layout {
	return NewLayout(points, r.config.Size, r.config.Padding)
}

// RenderPNG draws points with style on a transparent square canvas.
// Muted points are drawn first so focused cells stay on top. The selected
// point gets a ring.
func (r *ScatterRenderer) RenderPNG(points []viewstate.Point, style viewstate.Style) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.Transparent)
	dc.Clear()

	if len(points) == 0 {
		return r.encodeContext(dc)
	}

	cmap, err := colormap.ByName(style.Colorscale)
	if err != nil {
		cmap, _ = colormap.ByName(r.config.DefaultColorscale)
	}
	layout := r.Layout(points)
	radius := markerRadius(style.MarkerSize)

	colorOf := func(i int) (color.RGBA, bool) {
		if i >= len(style.Colors) {
			return cmap.At(colormap.Normalize(points[i].Z, style.CMin, style.CMax)), false
		}
		pc := style.Colors[i]
		if pc.Muted {
			return colormap.Muted, true
		}
		return cmap.At(colormap.Normalize(pc.Value, style.CMin, style.CMax)), false
	}

	for pass := 0; pass < 2; pass++ {
		wantMuted := pass == 0
		for i, p := range points {
			c, muted := colorOf(i)
			if muted != wantMuted {
				continue
			}
			x, y := layout.Pixel(p.X, p.Y)
			dc.SetColor(c)
			dc.DrawCircle(x, y, radius)
			dc.Fill()
		}
	}

	if s := style.Selected; s >= 0 && s < len(points) {
		x, y := layout.Pixel(points[s].X, points[s].Y)
		dc.SetColor(colormap.Selected)
		dc.SetLineWidth(1.5)
		dc.DrawCircle(x, y, radius+3)
		dc.Stroke()
	}

	return r.encodeContext(dc)
}

func (r *ScatterRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

func markerRadius(size float64) float64 {
	return math.Max(size/2, 1)
}

// Layout maps data coordinates onto a square canvas, preserving the aspect
// ratio and pointing the y axis up.
type Layout struct {
	minX, maxY float64
	scale      float64
	offX, offY float64
}

// NewLayout fits the bounding box of points into a size x size canvas with
// padding pixels on every side.
func NewLayout(points []viewstate.Point, size int, padding float64) Layout {
	if len(points) == 0 {
		return Layout{scale: 1}
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	inner := float64(size) - 2*padding
	if inner <= 0 {
		inner = float64(size)
		padding = 0
	}
	span := math.Max(maxX-minX, maxY-minY)

	l := Layout{minX: minX, maxY: maxY, scale: 1}
	if span > 0 {
		l.scale = inner / span
	}
	// center the shorter axis
	l.offX = padding + (inner-(maxX-minX)*l.scale)/2
	l.offY = padding + (inner-(maxY-minY)*l.scale)/2
	return l
}

// Pixel returns the canvas position of a data point.
func (l Layout) Pixel(x, y float64) (float64, float64) {
	return l.offX + (x-l.minX)*l.scale, l.offY + (l.maxY-y)*l.scale
}
