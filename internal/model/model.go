// Package model defines the documents served by cellan: encodings,
// iterations, cells and the per-source gene index.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidDocument is returned when a stored document does not satisfy
// the shape its collection requires.
var ErrInvalidDocument = errors.New("invalid document")

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Sources names the input files an encoding was computed from.
// BarcodesFile doubles as the source id of the encoding's cells and genes.
type Sources struct {
	MatrixFile   string `json:"matrixFile" yaml:"matrix_file"`
	BarcodesFile string `json:"barcodesFile" yaml:"barcodes_file"`
	GenesFile    string `json:"genesFile" yaml:"genes_file"`
}

// Encoding is one experiment run.
type Encoding struct {
	ID                  string     `json:"id" yaml:"id" validate:"required"`
	Date                *time.Time `json:"date" yaml:"date"`
	DefaultIteration    int        `json:"defaultIteration" yaml:"default_iteration" validate:"gte=0"`
	AvailableIterations []int      `json:"availableIterations" yaml:"available_iterations" validate:"dive,gte=0"`
	Sources             Sources    `json:"sources" yaml:"sources"`
}

// SourceID returns the id joining this encoding to its cells and genes.
func (e *Encoding) SourceID() string {
	return e.Sources.BarcodesFile
}

// Validate checks the encoding document.
func (e *Encoding) Validate() error {
	return checkStruct(e)
}

// Iteration is one computed layout of an encoding. The five positional
// arrays are aligned: index i across all of them describes one point.
type Iteration struct {
	EncodingID      string    `json:"encodingId" validate:"required"`
	IterationIndex  int       `json:"iterationIndex" validate:"gte=0"`
	CellIDs         []int64   `json:"cellIds"`
	Names           []string  `json:"names"`
	X               []float64 `json:"x"`
	Y               []float64 `json:"y"`
	Z               []float64 `json:"z"`
	DuplicateGroups [][]int64 `json:"duplicateGroups"`
}

// Len returns the number of plotted points.
func (it *Iteration) Len() int {
	return len(it.CellIDs)
}

// Validate checks the struct tags, the positional-length invariant and
// that no cell id belongs to more than one duplicate group.
func (it *Iteration) Validate() error {
	if err := checkStruct(it); err != nil {
		return err
	}

	n := len(it.CellIDs)
	lengths := map[string]int{
		"names": len(it.Names),
		"x":     len(it.X),
		"y":     len(it.Y),
		"z":     len(it.Z),
	}
	for field, l := range lengths {
		if l != n {
			return fmt.Errorf("%w: iteration %s/%d: %s has %d entries, cellIds has %d",
				ErrInvalidDocument, it.EncodingID, it.IterationIndex, field, l, n)
		}
	}

	seen := make(map[int64]struct{})
	for _, group := range it.DuplicateGroups {
		for _, id := range group {
			if _, dup := seen[id]; dup {
				return fmt.Errorf("%w: iteration %s/%d: cell %d appears in more than one duplicate group",
					ErrInvalidDocument, it.EncodingID, it.IterationIndex, id)
			}
			seen[id] = struct{}{}
		}
	}
	return nil
}

// GeneValue is one gene measured in a cell.
type GeneValue struct {
	EnsemblID string  `json:"ensemblId" validate:"required"`
	MGISymbol string  `json:"mgiSymbol"`
	Value     float64 `json:"value"`
}

// Cell is the detail record of one biological unit.
type Cell struct {
	SourceID string      `json:"sourceId" validate:"required"`
	CellID   int64       `json:"cellId"`
	Name     string      `json:"name"`
	Genes    []GeneValue `json:"genes" validate:"dive"`
}

// Validate checks the cell document.
func (c *Cell) Validate() error {
	return checkStruct(c)
}

// GenesAtLeast returns the genes whose value is >= threshold, in stored order.
func (c *Cell) GenesAtLeast(threshold int) []GeneValue {
	out := make([]GeneValue, 0, len(c.Genes))
	for _, g := range c.Genes {
		if g.Value >= float64(threshold) {
			out = append(out, g)
		}
	}
	return out
}

// Gene is the reverse index from one gene to the cells of a source
// expressing it.
type Gene struct {
	SourceID  string  `json:"sourceId" validate:"required"`
	EnsemblID string  `json:"ensemblId" validate:"required"`
	MGISymbol string  `json:"mgiSymbol"`
	CellIDs   []int64 `json:"cellIds"`
}

// Validate checks the gene document.
func (g *Gene) Validate() error {
	return checkStruct(g)
}

// CellSet returns the expressing cell ids as a set.
func (g *Gene) CellSet() map[int64]struct{} {
	set := make(map[int64]struct{}, len(g.CellIDs))
	for _, id := range g.CellIDs {
		set[id] = struct{}{}
	}
	return set
}

// Document is implemented by every stored record.
type Document interface {
	Validate() error
}

func checkStruct(doc interface{}) error {
	if err := validate.Struct(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}
