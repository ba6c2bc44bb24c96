package ingest

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cellcomm/cellan/internal/model"
)

// Writer is the write side of the document store.
type Writer interface {
	PutEncoding(ctx context.Context, enc *model.Encoding) error
	PutIteration(ctx context.Context, it *model.Iteration) error
	PutCells(ctx context.Context, cells []*model.Cell) error
	PutGenes(ctx context.Context, genes []*model.Gene) error
}

// ReadEncoding decodes an encoding descriptor:
//
//	id: LR9990
//	date: 2020-07-17T17:30:00Z
//	default_iteration: 1412
//	available_iterations: [1409, 1412]
//	sources:
//	  matrix_file: S1_matrix.mtx
//	  barcodes_file: S1_barcodes.tsv
//	  genes_file: S1_genes.tsv
func ReadEncoding(r io.Reader) (*model.Encoding, error) {
	var enc model.Encoding
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&enc); err != nil {
		return nil, fmt.Errorf("decode encoding: %w", err)
	}
	if err := enc.Validate(); err != nil {
		return nil, err
	}
	return &enc, nil
}

// LoadEncoding reads an encoding descriptor file.
func LoadEncoding(path string) (*model.Encoding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	enc, err := ReadEncoding(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return enc, nil
}

// ImportCells writes the cells and the gene index of a parsed triple.
func ImportCells(ctx context.Context, w Writer, data *CellData) error {
	if err := w.PutCells(ctx, data.Cells); err != nil {
		return fmt.Errorf("write cells: %w", err)
	}
	if err := w.PutGenes(ctx, data.Genes); err != nil {
		return fmt.Errorf("write genes: %w", err)
	}
	return nil
}
