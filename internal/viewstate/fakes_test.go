package viewstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/cellcomm/cellan/internal/model"
)

type fakeFetcher struct {
	mu          sync.Mutex
	encodings   map[string]*model.Encoding
	iterations  map[string]*model.Iteration
	cells       map[string]*model.Cell
	genes       map[string]*model.Gene
	encodingHit int

	// cellGates blocks GetCell for a cell id until the channel is closed.
	// entered receives the id once the call is blocked.
	cellGates map[int64]chan struct{}
	entered   chan int64

	// iterationGates and geneGates block GetIteration ("enc/it") and
	// GetGene (ensembl id) the same way.
	iterationGates   map[string]chan struct{}
	iterationEntered chan string
	geneGates        map[string]chan struct{}
	geneEntered      chan string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		encodings:  make(map[string]*model.Encoding),
		iterations: make(map[string]*model.Iteration),
		cells:      make(map[string]*model.Cell),
		genes:      make(map[string]*model.Gene),
		cellGates:  make(map[int64]chan struct{}),
		entered:    make(chan int64, 8),

		iterationGates:   make(map[string]chan struct{}),
		iterationEntered: make(chan string, 8),
		geneGates:        make(map[string]chan struct{}),
		geneEntered:      make(chan string, 8),
	}
}

func (f *fakeFetcher) addEncoding(enc *model.Encoding) {
	f.encodings[enc.ID] = enc
}

func (f *fakeFetcher) addIteration(it *model.Iteration) {
	f.iterations[fmt.Sprintf("%s/%d", it.EncodingID, it.IterationIndex)] = it
}

func (f *fakeFetcher) addCell(c *model.Cell) {
	f.cells[fmt.Sprintf("%s/%d", c.SourceID, c.CellID)] = c
}

func (f *fakeFetcher) addGene(g *model.Gene) {
	f.genes[g.SourceID+"/"+g.EnsemblID] = g
}

func (f *fakeFetcher) GetEncoding(_ context.Context, id string) (*model.Encoding, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.encodingHit++
	enc, ok := f.encodings[id]
	return enc, ok, nil
}

func (f *fakeFetcher) GetIteration(_ context.Context, id string, it int) (*model.Iteration, bool, error) {
	key := fmt.Sprintf("%s/%d", id, it)
	f.mu.Lock()
	gate := f.iterationGates[key]
	f.mu.Unlock()
	if gate != nil {
		f.iterationEntered <- key
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.iterations[key]
	return v, ok, nil
}

func (f *fakeFetcher) GetCell(_ context.Context, sid string, cid int64) (*model.Cell, bool, error) {
	f.mu.Lock()
	gate := f.cellGates[cid]
	f.mu.Unlock()
	if gate != nil {
		f.entered <- cid
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.cells[fmt.Sprintf("%s/%d", sid, cid)]
	return v, ok, nil
}

func (f *fakeFetcher) GetGene(_ context.Context, sid, eid string) (*model.Gene, bool, error) {
	f.mu.Lock()
	gate := f.geneGates[eid]
	f.mu.Unlock()
	if gate != nil {
		f.geneEntered <- eid
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.genes[sid+"/"+eid]
	return v, ok, nil
}

func (f *fakeFetcher) gateIteration(key string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.iterationGates[key] = gate
	return gate
}

func (f *fakeFetcher) gateGene(ensemblID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.geneGates[ensemblID] = gate
	return gate
}

func (f *fakeFetcher) encodingFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.encodingHit
}

type fakePlot struct {
	mu       sync.Mutex
	renders  int
	points   []Point
	style    Style
	restyles int
	handler  func(ctx context.Context, cellID int64)
}

func (p *fakePlot) Render(points []Point, style Style) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renders++
	p.points = points
	p.style = style
	return nil
}

func (p *fakePlot) Restyle(style Style) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restyles++
	p.style = style
	return nil
}

func (p *fakePlot) OnPointClick(handler func(ctx context.Context, cellID int64)) {
	p.handler = handler
}

func (p *fakePlot) lastStyle() Style {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.style
}

type fakePanel struct {
	mu      sync.Mutex
	loading []bool
	view    PanelView
	updates int
}

func (p *fakePanel) SetLoading(loading bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = append(p.loading, loading)
}

func (p *fakePanel) Update(view PanelView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.view = view
	p.updates++
}

func (p *fakePanel) isLoading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.loading) > 0 && p.loading[len(p.loading)-1]
}

func (p *fakePanel) lastView() PanelView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}
