package main

import (
	"bytes"
	"context"
	"image/png"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellcomm/cellan/internal/api"
	"github.com/cellcomm/cellan/internal/metrics"
	"github.com/cellcomm/cellan/internal/model"
	"github.com/cellcomm/cellan/internal/query"
	"github.com/cellcomm/cellan/internal/store"
)

func TestMergeIterations(t *testing.T) {
	assert.Equal(t, []int{1, 2, 5, 9}, mergeIterations([]int{9, 2}, []int{1, 2, 5}))
	assert.Empty(t, mergeIterations(nil, nil))
}

func newSnapshotServer(t *testing.T) *httptest.Server {
	t.Helper()
	docs, err := store.Open(filepath.Join(t.TempDir(), "cellcomm.db"), store.DefaultTables())
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	ctx := context.Background()
	require.NoError(t, docs.PutEncoding(ctx, &model.Encoding{
		ID: "ABC", DefaultIteration: 21, Sources: model.Sources{BarcodesFile: "S"},
	}))
	require.NoError(t, docs.PutIteration(ctx, &model.Iteration{
		EncodingID: "ABC", IterationIndex: 21,
		CellIDs:         []int64{1, 2, 3},
		Names:           []string{"a", "b", "c"},
		X:               []float64{0, 10, 10},
		Y:               []float64{0, 10, 10},
		Z:               []float64{0, 128, 255},
		DuplicateGroups: [][]int64{{2, 3}},
	}))
	require.NoError(t, docs.PutCells(ctx, []*model.Cell{
		{SourceID: "S", CellID: 2, Name: "b", Genes: []model.GeneValue{{EnsemblID: "E2", MGISymbol: "Rp1", Value: 1}}},
		{SourceID: "S", CellID: 3, Name: "c", Genes: []model.GeneValue{{EnsemblID: "E1", MGISymbol: "Sox17", Value: 5}}},
	}))
	require.NoError(t, docs.PutGenes(ctx, []*model.Gene{
		{SourceID: "S", EnsemblID: "E1", MGISymbol: "Sox17", CellIDs: []int64{1, 3}},
	}))

	ts := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Queries:    query.NewService(query.Config{Store: docs}),
		Metrics:    metrics.New(),
		PathPrefix: "/cellan",
	}))
	t.Cleanup(ts.Close)
	return ts
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSnapshot(t *testing.T) {
	t.Setenv("CELLAN_LOG_LEVEL", "error")
	ts := newSnapshotServer(t)
	file := filepath.Join(t.TempDir(), "abc.png")

	out, err := runCLI(t, "snapshot", ts.URL+"/cellan/ABC/21",
		"-o", file, "--size", "64", "--cell", "3", "--sibling", "2", "--threshold", "1", "--gene", "E1")
	require.NoError(t, err)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())

	assert.Contains(t, out, "encoding ABC, iteration 21, threshold 1")
	assert.Contains(t, out, "cell b (2)")
	assert.Contains(t, out, "* b (2)")
	assert.Contains(t, out, "  c (3)")
	assert.Contains(t, out, "E2")
}

func TestSnapshot_UnknownIteration(t *testing.T) {
	t.Setenv("CELLAN_LOG_LEVEL", "error")
	ts := newSnapshotServer(t)

	_, err := runCLI(t, "snapshot", ts.URL+"/cellan/ABC/99", "-o", filepath.Join(t.TempDir(), "x.png"))
	assert.ErrorContains(t, err, "not found")
}
