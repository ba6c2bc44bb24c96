package ingest

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellcomm/cellan/internal/model"
)

type memWriter struct {
	mu         sync.Mutex
	encodings  []*model.Encoding
	iterations map[int]*model.Iteration
	cells      []*model.Cell
	genes      []*model.Gene
	failOn     int
}

func newMemWriter() *memWriter {
	return &memWriter{iterations: make(map[int]*model.Iteration), failOn: -1}
}

func (w *memWriter) PutEncoding(_ context.Context, enc *model.Encoding) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.encodings = append(w.encodings, enc)
	return nil
}

func (w *memWriter) PutIteration(_ context.Context, it *model.Iteration) error {
	if err := it.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if it.IterationIndex == w.failOn {
		return errors.New("disk full")
	}
	w.iterations[it.IterationIndex] = it
	return nil
}

func (w *memWriter) PutCells(_ context.Context, cells []*model.Cell) error {
	w.cells = append(w.cells, cells...)
	return nil
}

func (w *memWriter) PutGenes(_ context.Context, genes []*model.Gene) error {
	w.genes = append(w.genes, genes...)
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const testMatrix = `%%MatrixMarket matrix coordinate integer general
%
3 3 5
1 1 2
2 1 7
3 1 2
2 3 1
3 3 4
`

func TestReadMatrix(t *testing.T) {
	barcodes := []string{"AAAC-1", "AAAG-1", "AAAT-1"}
	genes := []GeneName{
		{EnsemblID: "ENSMUSG00000051951", MGISymbol: "Xkr4"},
		{EnsemblID: "ENSMUSG00000025900", MGISymbol: "Rp1"},
		{EnsemblID: "ENSMUSG00000025902", MGISymbol: "Sox17"},
	}

	cells, index, err := ReadMatrix(strings.NewReader(testMatrix), "S", barcodes, genes)
	require.NoError(t, err)

	require.Len(t, cells, 2)
	assert.Equal(t, int64(1), cells[0].CellID)
	assert.Equal(t, "AAAC-1", cells[0].Name)
	assert.Equal(t, "S", cells[0].SourceID)
	// sorted by value descending, ties keep file order
	assert.Equal(t, []model.GeneValue{
		{EnsemblID: "ENSMUSG00000025900", MGISymbol: "Rp1", Value: 7},
		{EnsemblID: "ENSMUSG00000051951", MGISymbol: "Xkr4", Value: 2},
		{EnsemblID: "ENSMUSG00000025902", MGISymbol: "Sox17", Value: 2},
	}, cells[0].Genes)
	assert.Equal(t, int64(3), cells[1].CellID)
	assert.Equal(t, "ENSMUSG00000025902", cells[1].Genes[0].EnsemblID)

	require.Len(t, index, 3)
	assert.Equal(t, "ENSMUSG00000051951", index[0].EnsemblID)
	assert.Equal(t, []int64{1}, index[0].CellIDs)
	assert.Equal(t, []int64{1, 3}, index[1].CellIDs)
	assert.Equal(t, "Sox17", index[2].MGISymbol)
	assert.Equal(t, []int64{1, 3}, index[2].CellIDs)
}

func TestReadMatrix_InvalidReference(t *testing.T) {
	body := "1 1 1\n1 4 2\n"
	_, _, err := ReadMatrix(strings.NewReader(body), "S", []string{"a", "b", "c"}, []GeneName{{EnsemblID: "E1"}})
	assert.ErrorContains(t, err, "line 2: invalid barcode reference")
}

func TestLoadCells(t *testing.T) {
	dir := t.TempDir()
	matrix := writeFile(t, dir, "S1_matrix.mtx", testMatrix)
	writeFile(t, dir, "S1_barcodes.tsv", "AAAC-1\nAAAG-1\nAAAT-1\n")
	writeFile(t, dir, "S1_genes.tsv", "ENSMUSG00000051951\tXkr4\nENSMUSG00000025900\tRp1\nENSMUSG00000025902\tSox17\n")

	data, err := LoadCells(matrix, "S1_barcodes.tsv")
	require.NoError(t, err)
	assert.Len(t, data.Barcodes, 3)

	w := newMemWriter()
	require.NoError(t, ImportCells(context.Background(), w, data))
	assert.Len(t, w.cells, 2)
	assert.Len(t, w.genes, 3)
	for _, c := range w.cells {
		assert.NoError(t, c.Validate())
	}
}

func TestSiblingFiles(t *testing.T) {
	barcodes, genes, err := SiblingFiles("/data/S1_matrix.mtx")
	require.NoError(t, err)
	assert.Equal(t, "/data/S1_barcodes.tsv", barcodes)
	assert.Equal(t, "/data/S1_genes.tsv", genes)

	_, _, err = SiblingFiles("/data/S1.csv")
	assert.Error(t, err)
}

func TestBuildIteration(t *testing.T) {
	coords, err := ReadCoordinates(strings.NewReader("0 0 0.5\n0.1 0.2 1\n0 -0 0.2\n0.1 0.2 0\n"), DefaultScale)
	require.NoError(t, err)
	assert.InDelta(t, 127.5, coords[0].Z, 1e-9)

	it, err := BuildIteration("LR9990", 1412, []string{"a", "b", "c", "d"}, coords)
	require.NoError(t, err)
	require.NoError(t, it.Validate())

	assert.Equal(t, []int64{1, 2, 3, 4}, it.CellIDs)
	assert.Equal(t, []string{"a", "b", "c", "d"}, it.Names)
	assert.Equal(t, [][]int64{{1, 3}, {2, 4}}, it.DuplicateGroups)
}

func TestBuildIteration_LengthMismatch(t *testing.T) {
	_, err := BuildIteration("LR9990", 1, []string{"a"}, []Coord{{}, {}})
	assert.ErrorContains(t, err, "different length")
}

func TestDuplicateGroups_NoDuplicates(t *testing.T) {
	groups := DuplicateGroups([]int64{1, 2}, []float64{0, 1}, []float64{0, math.Copysign(0, -1)})
	assert.Empty(t, groups)
}

func TestImportIterations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1409.tsv", "0 0 0\n1 1 1\n")
	writeFile(t, dir, "1412.tsv", "0.5 0.5 0\n0.5 0.5 1\n")
	writeFile(t, dir, "notes.tsv", "ignored")
	writeFile(t, dir, "1500.enc", "ignored")

	w := newMemWriter()
	indexes, err := ImportIterations(context.Background(), w, dir, IterationOptions{
		EncodingID: "LR9990",
		Barcodes:   []string{"a", "b"},
		Workers:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1409, 1412}, indexes)

	require.Len(t, w.iterations, 2)
	assert.Empty(t, w.iterations[1409].DuplicateGroups)
	assert.Equal(t, [][]int64{{1, 2}}, w.iterations[1412].DuplicateGroups)
	assert.Equal(t, []float64{127.5, 127.5}, w.iterations[1412].X)
}

func TestImportIterations_StopsOnError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1.tsv", "0 0 0\n")
	writeFile(t, dir, "2.tsv", "0 0 0\n1 1 1\n")

	_, err := ImportIterations(context.Background(), newMemWriter(), dir, IterationOptions{
		EncodingID: "LR9990",
		Barcodes:   []string{"a"},
	})
	assert.ErrorContains(t, err, "iteration 2")

	w := newMemWriter()
	w.failOn = 1
	_, err = ImportIterations(context.Background(), w, dir, IterationOptions{
		EncodingID: "LR9990",
		Barcodes:   []string{"a"},
		Workers:    1,
	})
	assert.Error(t, err)
}

func TestReadEncoding(t *testing.T) {
	enc, err := ReadEncoding(strings.NewReader(`
id: LR9990
date: 2020-07-17T17:30:00Z
default_iteration: 1412
available_iterations: [1409, 1412]
sources:
  matrix_file: S1_matrix.mtx
  barcodes_file: S1_barcodes.tsv
  genes_file: S1_genes.tsv
`))
	require.NoError(t, err)
	assert.Equal(t, "LR9990", enc.ID)
	assert.Equal(t, 1412, enc.DefaultIteration)
	assert.Equal(t, []int{1409, 1412}, enc.AvailableIterations)
	assert.Equal(t, "S1_barcodes.tsv", enc.SourceID())
	require.NotNil(t, enc.Date)
	assert.True(t, enc.Date.Equal(time.Date(2020, 7, 17, 17, 30, 0, 0, time.UTC)))

	_, err = ReadEncoding(strings.NewReader("default_iteration: 3\n"))
	assert.ErrorIs(t, err, model.ErrInvalidDocument)

	_, err = ReadEncoding(strings.NewReader("id: X\nbogus: 1\n"))
	assert.Error(t, err)
}
