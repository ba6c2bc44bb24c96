package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cellcomm/cellan/internal/model"
)

// DefaultScale multiplies raw coordinates, which the training run writes in
// [0, 1].
const DefaultScale = 255

// Coord is one row of an iteration file.
type Coord struct {
	X, Y, Z float64
}

// ReadCoordinates reads whitespace separated "x y z" rows and multiplies
// every value by scale.
func ReadCoordinates(r io.Reader, scale float64) ([]Coord, error) {
	var coords []Coord
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 columns, got %d", line, len(fields))
		}
		var v [3]float64
		for i, f := range fields {
			n, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			v[i] = n * scale
		}
		coords = append(coords, Coord{X: v[0], Y: v[1], Z: v[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return coords, nil
}

// BuildIteration aligns coordinates with barcodes. Cell ids are the 1-based
// barcode line numbers and names are the barcodes.
func BuildIteration(encodingID string, index int, barcodes []string, coords []Coord) (*model.Iteration, error) {
	if len(barcodes) != len(coords) {
		return nil, fmt.Errorf("iteration %d: coordinates/barcodes have different length: %d != %d",
			index, len(coords), len(barcodes))
	}

	n := len(coords)
	it := &model.Iteration{
		EncodingID:     encodingID,
		IterationIndex: index,
		CellIDs:        make([]int64, n),
		Names:          make([]string, n),
		X:              make([]float64, n),
		Y:              make([]float64, n),
		Z:              make([]float64, n),
	}
	for i, c := range coords {
		it.CellIDs[i] = int64(i + 1)
		it.Names[i] = barcodes[i]
		it.X[i] = c.X
		it.Y[i] = c.Y
		it.Z[i] = c.Z
	}
	it.DuplicateGroups = DuplicateGroups(it.CellIDs, it.X, it.Y)
	return it, nil
}

// DuplicateGroups groups cell ids plotted at exactly the same position.
// Groups are ordered by their first member and members keep their
// positional order. Singletons are omitted.
func DuplicateGroups(cellIDs []int64, x, y []float64) [][]int64 {
	type key struct{ x, y uint64 }
	bits := func(f float64) uint64 {
		if f == 0 {
			f = 0 // fold -0 into +0
		}
		return math.Float64bits(f)
	}

	groups := make(map[key][]int64)
	var order []key
	for i, id := range cellIDs {
		k := key{bits(x[i]), bits(y[i])}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], id)
	}

	var out [][]int64
	for _, k := range order {
		if members := groups[k]; len(members) > 1 {
			out = append(out, members)
		}
	}
	return out
}

// IterationFiles lists the "<iteration>.tsv" files of dir keyed by
// iteration index. Files whose stem is not an integer are ignored.
func IterationFiles(dir string) (map[int]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".tsv" {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSuffix(e.Name(), ".tsv"))
		if err != nil || index < 0 {
			continue
		}
		files[index] = filepath.Join(dir, e.Name())
	}
	return files, nil
}

// IterationOptions configures ImportIterations.
type IterationOptions struct {
	EncodingID string
	Barcodes   []string
	Scale      float64
	// Workers bounds the number of files parsed concurrently. Zero uses
	// GOMAXPROCS.
	Workers int
	Logger  *zap.Logger
}

// ImportIterations parses every iteration file of dir and writes the
// iterations. It stops at the first failure and returns the imported
// indexes in ascending order.
func ImportIterations(ctx context.Context, w Writer, dir string, opts IterationOptions) ([]int, error) {
	if opts.Scale == 0 {
		opts.Scale = DefaultScale
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	files, err := IterationFiles(dir)
	if err != nil {
		return nil, err
	}
	indexes := make([]int, 0, len(files))
	for index := range files {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, index := range indexes {
		index, path := index, files[index]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			coords, err := readFile(path, func(r io.Reader) ([]Coord, error) {
				return ReadCoordinates(r, opts.Scale)
			})
			if err != nil {
				return err
			}
			it, err := BuildIteration(opts.EncodingID, index, opts.Barcodes, coords)
			if err != nil {
				return err
			}
			if err := w.PutIteration(ctx, it); err != nil {
				return fmt.Errorf("write iteration %d: %w", index, err)
			}
			logger.Debug("imported iteration",
				zap.String("encoding", opts.EncodingID),
				zap.Int("iteration", index),
				zap.Int("points", it.Len()),
				zap.Int("duplicate_groups", len(it.DuplicateGroups)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info("imported iterations", zap.String("encoding", opts.EncodingID), zap.Int("count", len(indexes)))
	return indexes, nil
}
