package render

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/cellcomm/cellan/internal/viewstate"
)

// clickSlack widens the hit area of a point beyond its marker radius.
const clickSlack = 2.0

// Canvas is an offscreen plot surface. It keeps the last rendered frame
// and resolves clicks in pixel coordinates to cell ids.
type Canvas struct {
	renderer *ScatterRenderer

	mu      sync.Mutex
	points  []viewstate.Point
	style   viewstate.Style
	layout  Layout
	frame   []byte
	handler func(ctx context.Context, cellID int64)
}

// NewCanvas creates a canvas drawing with renderer.
func NewCanvas(renderer *ScatterRenderer) *Canvas {
	return &Canvas{renderer: renderer}
}

// Render replaces the plotted points.
func (c *Canvas) Render(points []viewstate.Point, style viewstate.Style) error {
	frame, err := c.renderer.RenderPNG(points, style)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.points = points
	c.style = style
	c.layout = c.renderer.Layout(points)
	c.frame = frame
	return nil
}

// Restyle repaints the plotted points with a new style.
func (c *Canvas) Restyle(style viewstate.Style) error {
	c.mu.Lock()
	points := c.points
	c.mu.Unlock()

	if len(style.Colors) != len(points) {
		return fmt.Errorf("style has %d colors for %d points", len(style.Colors), len(points))
	}
	frame, err := c.renderer.RenderPNG(points, style)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.style = style
	c.frame = frame
	return nil
}

// OnPointClick registers the click handler.
func (c *Canvas) OnPointClick(handler func(ctx context.Context, cellID int64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// PointAt returns the id of the point nearest to pixel (px, py) within its
// marker radius.
func (c *Canvas) PointAt(px, py float64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reach := markerRadius(c.style.MarkerSize) + clickSlack
	best, bestDist := -1, math.Inf(1)
	for i, p := range c.points {
		x, y := c.layout.Pixel(p.X, p.Y)
		d := math.Hypot(x-px, y-py)
		if d <= reach && d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return 0, false
	}
	return c.points[best].ID, true
}

// Click hit-tests pixel (px, py) and passes the point found to the click
// handler. It reports whether a point was hit.
func (c *Canvas) Click(ctx context.Context, px, py float64) bool {
	id, ok := c.PointAt(px, py)
	if !ok {
		return false
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(ctx, id)
	}
	return true
}

// PixelOf returns the canvas position of the point with cellID.
func (c *Canvas) PixelOf(cellID int64) (float64, float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.points {
		if p.ID == cellID {
			x, y := c.layout.Pixel(p.X, p.Y)
			return x, y, true
		}
	}
	return 0, 0, false
}

// PNG returns the last rendered frame.
func (c *Canvas) PNG() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}
