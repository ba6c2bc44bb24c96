// Package viewstate holds the page state of the iteration viewer and the
// controller that moves it between phases.
//
// State is an immutable value. Every transition returns a new State and
// leaves the receiver untouched, so a state handed to a renderer can never
// change underneath it.
package viewstate

import (
	"fmt"
	"math"

	"github.com/cellcomm/cellan/internal/model"
)

// Phase is the coarse phase of the page.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseCellSelected
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseCellSelected:
		return "cell-selected"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// DefaultIterationOptions is offered by the iteration picker when an
// encoding does not list its iterations.
var DefaultIterationOptions = func() []int {
	its := make([]int, 450)
	for i := range its {
		its[i] = 5009 + i*100
	}
	return its
}()

// State is the page view state.
type State struct {
	loading        bool
	encodingID     string
	iterationIndex int
	encoding       *model.Encoding
	iteration      *model.Iteration
	duplicates     DuplicateIndex

	selectedCell *model.Cell
	// clickedCellID is the plotted point carrying the selection highlight.
	// It differs from selectedCell when a sibling was chosen.
	clickedCellID int64

	geneFocus  string
	focusCells map[int64]struct{}
	threshold  int
}

// Initial returns the empty state with the given gene threshold.
func Initial(threshold int) State {
	return State{threshold: threshold}
}

// Loading marks a navigation to (encodingID, iteration) in progress. The
// previous plot data stays available until Navigated replaces it.
func (s State) Loading(encodingID string, iteration int) State {
	s.loading = true
	s.encodingID = encodingID
	s.iterationIndex = iteration
	return s
}

// Navigated installs a freshly loaded iteration. Selection and gene focus
// are reset; the threshold is kept.
func (s State) Navigated(enc *model.Encoding, it *model.Iteration) State {
	return State{
		encodingID:     enc.ID,
		iterationIndex: it.IterationIndex,
		encoding:       enc,
		iteration:      it,
		duplicates:     NewDuplicateIndex(it),
		threshold:      s.threshold,
	}
}

// CellSelected selects cell, clicked on the plot.
func (s State) CellSelected(cell *model.Cell) State {
	s.selectedCell = cell
	s.clickedCellID = cell.CellID
	return s
}

// SiblingSelected shows cell in the panel while the plot highlight stays
// on the originally clicked point.
func (s State) SiblingSelected(cell *model.Cell) State {
	if s.selectedCell == nil {
		return s.CellSelected(cell)
	}
	s.selectedCell = cell
	return s
}

// WithThreshold changes the gene value threshold.
func (s State) WithThreshold(threshold int) State {
	s.threshold = threshold
	return s
}

// WithGeneFocus focuses gene: only its expressing cells keep their color.
func (s State) WithGeneFocus(gene *model.Gene) State {
	s.geneFocus = gene.EnsemblID
	s.focusCells = gene.CellSet()
	return s
}

// WithoutGeneFocus clears the gene focus.
func (s State) WithoutGeneFocus() State {
	s.geneFocus = ""
	s.focusCells = nil
	return s
}

// NavigationFailed abandons a navigation. The navigation fields of prev,
// taken before Loading, are restored; changes made while loading are kept.
func (s State) NavigationFailed(prev State) State {
	s.loading = prev.loading
	s.encodingID = prev.encodingID
	s.iterationIndex = prev.iterationIndex
	return s
}

// Phase returns the current phase.
func (s State) Phase() Phase {
	switch {
	case s.loading || s.iteration == nil:
		return PhaseLoading
	case s.selectedCell != nil:
		return PhaseCellSelected
	default:
		return PhaseReady
	}
}

func (s State) EncodingID() string {
	return s.encodingID
}

func (s State) IterationIndex() int {
	return s.iterationIndex
}

func (s State) Encoding() *model.Encoding {
	return s.encoding
}

func (s State) Iteration() *model.Iteration {
	return s.iteration
}

func (s State) Duplicates() DuplicateIndex {
	return s.duplicates
}

func (s State) SelectedCell() *model.Cell {
	return s.selectedCell
}

func (s State) ClickedCellID() int64 {
	return s.clickedCellID
}

func (s State) GeneFocus() string {
	return s.geneFocus
}

func (s State) GeneFocused() bool {
	return s.geneFocus != ""
}

func (s State) Threshold() int {
	return s.threshold
}

// BaseColors returns the color value of every plotted point before any
// gene focus, which is the iteration's z array.
func (s State) BaseColors() []float64 {
	if s.iteration == nil {
		return nil
	}
	return s.iteration.Z
}

// VisibleGenes returns the selected cell's genes at or above the threshold.
func (s State) VisibleGenes() []model.GeneValue {
	if s.selectedCell == nil {
		return nil
	}
	return s.selectedCell.GenesAtLeast(s.threshold)
}

// Points returns the plotted points with their hover text.
func (s State) Points() []Point {
	it := s.iteration
	if it == nil {
		return nil
	}

	points := make([]Point, it.Len())
	for i, id := range it.CellIDs {
		text := fmt.Sprintf("%d<br>%s", id, it.Names[i])
		if g, ok := s.duplicates.Lookup(id); ok {
			text += fmt.Sprintf("<br>%d cells at this position", len(g.Members))
		}
		points[i] = Point{ID: id, X: it.X[i], Y: it.Y[i], Z: it.Z[i], Text: text}
	}
	return points
}

// Style returns the marker style of the plotted points.
func (s State) Style(colorscale string, markerSize float64) Style {
	base := s.BaseColors()
	style := Style{
		Colorscale: colorscale,
		MarkerSize: markerSize,
		Colors:     make([]PointColor, len(base)),
		Selected:   -1,
	}

	style.CMin, style.CMax = math.Inf(1), math.Inf(-1)
	for _, v := range base {
		style.CMin = math.Min(style.CMin, v)
		style.CMax = math.Max(style.CMax, v)
	}
	if len(base) == 0 {
		style.CMin, style.CMax = 0, 0
	}

	for i, v := range base {
		id := s.iteration.CellIDs[i]
		style.Colors[i] = PointColor{Value: v}
		if s.focusCells != nil {
			_, member := s.focusCells[id]
			style.Colors[i].Muted = !member
		}
		if s.selectedCell != nil && id == s.clickedCellID && style.Selected < 0 {
			style.Selected = i
		}
	}
	return style
}

// Iterations returns the iteration picker options.
func (s State) Iterations() []int {
	if s.encoding != nil && len(s.encoding.AvailableIterations) > 0 {
		return s.encoding.AvailableIterations
	}
	return DefaultIterationOptions
}

// PanelView returns the detail panel content.
func (s State) PanelView() PanelView {
	view := PanelView{
		EncodingID:  s.encodingID,
		Iteration:   s.iterationIndex,
		Iterations:  s.Iterations(),
		Threshold:   s.threshold,
		FocusedGene: s.geneFocus,
	}
	if s.selectedCell == nil {
		return view
	}

	cell := &CellView{
		CellID: s.selectedCell.CellID,
		Name:   s.selectedCell.Name,
		Genes:  s.VisibleGenes(),
	}
	if g, ok := s.duplicates.Lookup(s.clickedCellID); ok {
		for _, m := range g.Members {
			cell.Siblings = append(cell.Siblings, Sibling{
				CellID:   m.CellID,
				Name:     m.Name,
				Selected: m.CellID == s.selectedCell.CellID,
			})
		}
	}
	view.Cell = cell
	return view
}
