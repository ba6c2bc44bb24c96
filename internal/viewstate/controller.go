package viewstate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cellcomm/cellan/internal/model"
)

var (
	// ErrStale is returned when a newer request superseded this one. The
	// result was discarded and the state is unchanged.
	ErrStale = errors.New("superseded by a newer request")
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotReady is returned by transitions that need a loaded iteration.
	ErrNotReady = errors.New("no iteration loaded")
)

// Config contains controller configuration.
type Config struct {
	Fetcher    Fetcher
	Plot       PlotSurface
	Panel      Panel
	Location   Location
	Logger     *zap.Logger
	Colorscale string
	MarkerSize float64
	Threshold  int
	// BasePath is the listing page address used by Navigate when the
	// current location does not name an iteration.
	BasePath string
}

// Controller owns the page state. Transitions are serialized; fetches run
// outside the lock and every fetch carries a request token so that a result
// arriving after a newer request of the same kind is dropped.
type Controller struct {
	fetcher    Fetcher
	plot       PlotSurface
	panel      Panel
	location   Location
	logger     *zap.Logger
	colorscale string
	markerSize float64

	mu        sync.Mutex
	base      string
	state     State
	encodings map[string]*model.Encoding
	navToken  uint64
	cellToken uint64
	geneToken uint64
	pending   int
}

// NewController creates a controller and subscribes it to plot clicks.
func NewController(cfg Config) *Controller {
	if cfg.Colorscale == "" {
		cfg.Colorscale = "jet"
	}
	if cfg.MarkerSize <= 0 {
		cfg.MarkerSize = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Controller{
		fetcher:    cfg.Fetcher,
		plot:       cfg.Plot,
		panel:      cfg.Panel,
		location:   cfg.Location,
		logger:     logger.Named("viewstate"),
		colorscale: cfg.Colorscale,
		markerSize: cfg.MarkerSize,
		base:       strings.TrimRight(cfg.BasePath, "/"),
		state:      Initial(cfg.Threshold),
		encodings:  make(map[string]*model.Encoding),
	}
	c.plot.OnPointClick(func(ctx context.Context, cellID int64) {
		if err := c.ClickPoint(ctx, cellID); err != nil && !errors.Is(err, ErrStale) {
			c.logger.Debug("point click", zap.Int64("cell", cellID), zap.Error(err))
		}
	})
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Sync loads the encoding iteration named by the current location. It is
// the handler for initial page load and for back and forward navigation.
// An iteration segment that is not an integer counts as not found.
func (c *Controller) Sync(ctx context.Context) error {
	base, encodingID, segment, err := ParseLocation(c.location.Href())
	if err != nil {
		return err
	}
	c.setBase(base)
	iteration, err := strconv.Atoi(segment)
	if err != nil {
		return fmt.Errorf("%w: iteration %q of encoding %s", ErrNotFound, segment, encodingID)
	}
	return c.load(ctx, encodingID, iteration)
}

// Navigate pushes the address of (encodingID, iteration) and loads it.
// From a location that names no iteration, such as the listing page, the
// address is built on the configured or last seen base path.
func (c *Controller) Navigate(ctx context.Context, encodingID string, iteration int) error {
	base, _, _, err := ParseLocation(c.location.Href())
	if err == nil {
		c.setBase(base)
	} else if base = c.basePath(); base == "" {
		return err
	}
	c.location.Push(FormatPath(base, encodingID, iteration))
	return c.load(ctx, encodingID, iteration)
}

// SelectIteration switches to another iteration of the current encoding.
func (c *Controller) SelectIteration(ctx context.Context, iteration int) error {
	href, err := WithIteration(c.location.Href(), iteration)
	if err != nil {
		return err
	}
	c.location.Push(href)
	return c.Sync(ctx)
}

func (c *Controller) setBase(base string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = base
}

func (c *Controller) basePath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base
}

func (c *Controller) load(ctx context.Context, encodingID string, iteration int) error {
	c.mu.Lock()
	c.navToken++
	token := c.navToken
	// in-flight cell and gene fetches belong to the page being left
	c.cellToken++
	c.geneToken++
	prev := c.state
	c.state = prev.Loading(encodingID, iteration)
	c.begin()
	enc := c.encodings[encodingID]
	c.mu.Unlock()

	fail := func(err error) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		defer c.end()
		if token != c.navToken {
			return ErrStale
		}
		c.state = c.state.NavigationFailed(prev)
		c.panel.Update(c.state.PanelView())
		return err
	}

	if enc == nil {
		fetched, found, err := c.fetcher.GetEncoding(ctx, encodingID)
		if err != nil {
			return fail(fmt.Errorf("fetch encoding %s: %w", encodingID, err))
		}
		if !found {
			return fail(fmt.Errorf("%w: encoding %s", ErrNotFound, encodingID))
		}
		enc = fetched
	}

	it, found, err := c.fetcher.GetIteration(ctx, encodingID, iteration)
	if err != nil {
		return fail(fmt.Errorf("fetch iteration %s/%d: %w", encodingID, iteration, err))
	}
	if !found {
		return fail(fmt.Errorf("%w: iteration %d of encoding %s", ErrNotFound, iteration, encodingID))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.end()
	if token != c.navToken {
		return ErrStale
	}

	c.encodings[encodingID] = enc
	c.state = c.state.Navigated(enc, it)
	if err := c.plot.Render(c.state.Points(), c.style()); err != nil {
		return fmt.Errorf("render iteration %s/%d: %w", encodingID, iteration, err)
	}
	c.panel.Update(c.state.PanelView())

	c.logger.Debug("iteration loaded",
		zap.String("encoding", encodingID),
		zap.Int("iteration", iteration),
		zap.Int("points", it.Len()),
		zap.Int("duplicate_groups", c.state.Duplicates().Groups()))
	return nil
}

// ClickPoint selects the cell of a clicked point.
func (c *Controller) ClickPoint(ctx context.Context, cellID int64) error {
	return c.selectCell(ctx, cellID, false)
}

// SelectSibling shows another cell of the clicked point's duplicate group.
// The plot highlight stays on the clicked point.
func (c *Controller) SelectSibling(ctx context.Context, cellID int64) error {
	return c.selectCell(ctx, cellID, true)
}

func (c *Controller) selectCell(ctx context.Context, cellID int64, sibling bool) error {
	c.mu.Lock()
	s := c.state
	if s.Phase() == PhaseLoading {
		c.mu.Unlock()
		return ErrNotReady
	}
	if sibling {
		g, ok := s.Duplicates().Lookup(s.ClickedCellID())
		if s.SelectedCell() == nil || !ok || !g.Contains(cellID) {
			c.mu.Unlock()
			return fmt.Errorf("%w: cell %d is not at the selected position", ErrNotFound, cellID)
		}
	}
	c.cellToken++
	token := c.cellToken
	sourceID := s.Encoding().SourceID()
	c.begin()
	c.mu.Unlock()

	cell, found, err := c.fetcher.GetCell(ctx, sourceID, cellID)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.end()
	if token != c.cellToken {
		return ErrStale
	}
	if err != nil {
		c.logger.Warn("cell fetch failed", zap.String("source", sourceID), zap.Int64("cell", cellID), zap.Error(err))
		return fmt.Errorf("fetch cell %s/%d: %w", sourceID, cellID, err)
	}
	if !found {
		return fmt.Errorf("%w: cell %d of source %s", ErrNotFound, cellID, sourceID)
	}

	if sibling {
		c.state = c.state.SiblingSelected(cell)
	} else {
		c.state = c.state.CellSelected(cell)
	}
	if err := c.plot.Restyle(c.style()); err != nil {
		return fmt.Errorf("restyle: %w", err)
	}
	c.panel.Update(c.state.PanelView())
	return nil
}

// ChangeThreshold refilters the selected cell's genes.
func (c *Controller) ChangeThreshold(threshold int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = c.state.WithThreshold(threshold)
	c.panel.Update(c.state.PanelView())
}

// ChangeThresholdText parses a threshold typed by the user. A value that
// is not an integer is ignored.
func (c *Controller) ChangeThresholdText(value string) bool {
	threshold, err := strconv.Atoi(value)
	if err != nil {
		return false
	}
	c.ChangeThreshold(threshold)
	return true
}

// FocusGene recolors the plot so only cells expressing the gene keep their
// color. Focusing the focused gene again, or an empty id, clears the focus.
func (c *Controller) FocusGene(ctx context.Context, ensemblID string) error {
	c.mu.Lock()
	s := c.state
	if ensemblID == "" || ensemblID == s.GeneFocus() {
		defer c.mu.Unlock()
		c.geneToken++
		c.state = s.WithoutGeneFocus()
		return c.repaint()
	}
	if s.Phase() == PhaseLoading {
		c.mu.Unlock()
		return ErrNotReady
	}
	c.geneToken++
	token := c.geneToken
	sourceID := s.Encoding().SourceID()
	c.begin()
	c.mu.Unlock()

	gene, found, err := c.fetcher.GetGene(ctx, sourceID, ensemblID)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.end()
	if token != c.geneToken {
		return ErrStale
	}
	if err != nil {
		c.logger.Warn("gene fetch failed", zap.String("source", sourceID), zap.String("gene", ensemblID), zap.Error(err))
		return fmt.Errorf("fetch gene %s/%s: %w", sourceID, ensemblID, err)
	}
	if !found {
		return fmt.Errorf("%w: gene %s of source %s", ErrNotFound, ensemblID, sourceID)
	}

	c.state = c.state.WithGeneFocus(gene)
	return c.repaint()
}

// repaint restyles the plot and refreshes the panel. Callers hold mu.
func (c *Controller) repaint() error {
	if c.state.Iteration() != nil {
		if err := c.plot.Restyle(c.style()); err != nil {
			return fmt.Errorf("restyle: %w", err)
		}
	}
	c.panel.Update(c.state.PanelView())
	return nil
}

func (c *Controller) style() Style {
	return c.state.Style(c.colorscale, c.markerSize)
}

// begin and end bracket a fetch. The loading indicator is visible while at
// least one fetch is pending. Callers hold mu.
func (c *Controller) begin() {
	c.pending++
	if c.pending == 1 {
		c.panel.SetLoading(true)
	}
}

func (c *Controller) end() {
	c.pending--
	if c.pending == 0 {
		c.panel.SetLoading(false)
	}
}
