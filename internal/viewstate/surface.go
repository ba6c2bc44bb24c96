package viewstate

import (
	"context"

	"github.com/cellcomm/cellan/internal/model"
)

// Point is one plotted cell.
type Point struct {
	ID      int64
	X, Y, Z float64
	Text    string
}

// PointColor is the paint of one point: either a value on the colorscale
// or the muted color.
type PointColor struct {
	Value float64
	Muted bool
}

// Style is the marker appearance of a rendered point set. Colors is aligned
// with the points. CMin and CMax span the base colors so that a recolor
// never shifts the scale.
type Style struct {
	Colorscale string
	MarkerSize float64
	CMin, CMax float64
	Colors     []PointColor
	// Selected is the index of the highlighted point, or -1.
	Selected int
}

// PlotSurface draws point sets and reports point clicks.
type PlotSurface interface {
	Render(points []Point, style Style) error
	Restyle(style Style) error
	OnPointClick(handler func(ctx context.Context, cellID int64))
}

// Sibling is an entry of the same-position selector.
type Sibling struct {
	CellID   int64
	Name     string
	Selected bool
}

// CellView is the detail panel content for the selected cell.
type CellView struct {
	CellID   int64
	Name     string
	Siblings []Sibling
	Genes    []model.GeneValue
}

// PanelView is everything the detail panel shows.
type PanelView struct {
	EncodingID  string
	Iteration   int
	Iterations  []int
	Threshold   int
	Cell        *CellView
	FocusedGene string
}

// Panel presents the detail panel and the loading indicator.
type Panel interface {
	SetLoading(loading bool)
	Update(view PanelView)
}

// Location is the page address with push-style history.
type Location interface {
	Href() string
	Push(href string)
}

// Fetcher retrieves documents. A miss is reported by found == false.
type Fetcher interface {
	GetEncoding(ctx context.Context, encodingID string) (*model.Encoding, bool, error)
	GetIteration(ctx context.Context, encodingID string, iteration int) (*model.Iteration, bool, error)
	GetCell(ctx context.Context, sourceID string, cellID int64) (*model.Cell, bool, error)
	GetGene(ctx context.Context, sourceID, ensemblID string) (*model.Gene, bool, error)
}
