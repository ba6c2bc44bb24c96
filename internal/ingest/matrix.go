// Package ingest converts raw experiment outputs into cellan documents and
// writes them to the store. It runs out of band, from the import command.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cellcomm/cellan/internal/model"
)

// File name suffixes of a 10x Matrix Market triple sharing one prefix.
const (
	MatrixSuffix   = "matrix.mtx"
	BarcodesSuffix = "barcodes.tsv"
	GenesSuffix    = "genes.tsv"
)

// GeneName is one row of a genes file.
type GeneName struct {
	EnsemblID string
	MGISymbol string
}

// SiblingFiles returns the barcodes and genes paths next to a matrix file.
func SiblingFiles(matrixPath string) (barcodes, genes string, err error) {
	if !strings.HasSuffix(matrixPath, MatrixSuffix) {
		return "", "", fmt.Errorf("%s: expected a *%s file", matrixPath, MatrixSuffix)
	}
	prefix := strings.TrimSuffix(matrixPath, MatrixSuffix)
	return prefix + BarcodesSuffix, prefix + GenesSuffix, nil
}

// ReadBarcodes reads one barcode per line. Blank lines are skipped.
func ReadBarcodes(r io.Reader) ([]string, error) {
	var barcodes []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		barcodes = append(barcodes, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read barcodes: %w", err)
	}
	return barcodes, nil
}

// ReadGenes reads tab separated "ensembl<TAB>symbol" rows.
func ReadGenes(r io.Reader) ([]GeneName, error) {
	var genes []GeneName
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		g := GeneName{EnsemblID: strings.TrimSpace(fields[0])}
		if len(fields) > 1 {
			g.MGISymbol = strings.TrimSpace(fields[1])
		}
		if g.EnsemblID == "" {
			return nil, fmt.Errorf("genes line %d: empty ensembl id", line)
		}
		genes = append(genes, g)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read genes: %w", err)
	}
	return genes, nil
}

// ReadMatrix reads a coordinate Matrix Market body of "gene barcode value"
// entries with 1-based gene and barcode references. It returns one Cell per
// barcode that has at least one entry, ordered by cell id, with genes sorted
// by value descending, and the reverse Gene index of the source.
func ReadMatrix(r io.Reader, sourceID string, barcodes []string, genes []GeneName) ([]*model.Cell, []*model.Gene, error) {
	cells := make(map[int64]*model.Cell)
	expressing := make(map[int][]int64)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	sizeSeen := false
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "%") {
			continue
		}
		if !sizeSeen {
			// rows cols entries
			sizeSeen = true
			continue
		}

		fields := strings.Fields(text)
		if len(fields) != 3 {
			return nil, nil, fmt.Errorf("matrix line %d: expected 3 fields, got %d", line, len(fields))
		}
		geneRef, err := strconv.Atoi(fields[0])
		if err != nil || geneRef < 1 || geneRef > len(genes) {
			return nil, nil, fmt.Errorf("matrix line %d: invalid gene reference %q", line, fields[0])
		}
		cellID, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || cellID < 1 || cellID > int64(len(barcodes)) {
			return nil, nil, fmt.Errorf("matrix line %d: invalid barcode reference %q", line, fields[1])
		}
		value, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("matrix line %d: invalid value %q", line, fields[2])
		}

		cell, ok := cells[cellID]
		if !ok {
			cell = &model.Cell{SourceID: sourceID, CellID: cellID, Name: barcodes[cellID-1]}
			cells[cellID] = cell
		}
		gene := genes[geneRef-1]
		cell.Genes = append(cell.Genes, model.GeneValue{
			EnsemblID: gene.EnsemblID,
			MGISymbol: gene.MGISymbol,
			Value:     value,
		})
		expressing[geneRef-1] = append(expressing[geneRef-1], cellID)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read matrix: %w", err)
	}

	out := make([]*model.Cell, 0, len(cells))
	for _, cell := range cells {
		sort.SliceStable(cell.Genes, func(i, j int) bool {
			return cell.Genes[i].Value > cell.Genes[j].Value
		})
		out = append(out, cell)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CellID < out[j].CellID })

	index := make([]*model.Gene, 0, len(expressing))
	for ix, name := range genes {
		ids, ok := expressing[ix]
		if !ok {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		index = append(index, &model.Gene{
			SourceID:  sourceID,
			EnsemblID: name.EnsemblID,
			MGISymbol: name.MGISymbol,
			CellIDs:   dedupe(ids),
		})
	}
	return out, index, nil
}

func dedupe(sorted []int64) []int64 {
	out := sorted[:0]
	for i, id := range sorted {
		if i == 0 || id != sorted[i-1] {
			out = append(out, id)
		}
	}
	return out
}

// CellData is a parsed Matrix Market triple.
type CellData struct {
	Barcodes []string
	Cells    []*model.Cell
	Genes    []*model.Gene
}

// LoadCells reads the matrix at matrixPath and its sibling barcodes and
// genes files.
func LoadCells(matrixPath, sourceID string) (*CellData, error) {
	barcodesPath, genesPath, err := SiblingFiles(matrixPath)
	if err != nil {
		return nil, err
	}

	barcodes, err := readFile(barcodesPath, ReadBarcodes)
	if err != nil {
		return nil, err
	}
	genes, err := readFile(genesPath, ReadGenes)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(matrixPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cells, index, err := ReadMatrix(f, sourceID, barcodes, genes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", matrixPath, err)
	}
	return &CellData{Barcodes: barcodes, Cells: cells, Genes: index}, nil
}

// LoadBarcodes reads a barcodes file.
func LoadBarcodes(path string) ([]string, error) {
	return readFile(path, ReadBarcodes)
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	v, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
