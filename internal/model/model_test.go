package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIteration() *Iteration {
	return &Iteration{
		EncodingID:      "ABC",
		IterationIndex:  21,
		CellIDs:         []int64{1, 2, 3},
		Names:           []string{"AAAC-1", "AAAC-2", "AAAC-3"},
		X:               []float64{0, 1, 1},
		Y:               []float64{0, 2, 2},
		Z:               []float64{5, 6, 7},
		DuplicateGroups: [][]int64{{2, 3}},
	}
}

func TestIterationValidate(t *testing.T) {
	t.Run("aligned arrays", func(t *testing.T) {
		it := validIteration()
		require.NoError(t, it.Validate())
		assert.Equal(t, 3, it.Len())
	})

	t.Run("short coordinate array", func(t *testing.T) {
		it := validIteration()
		it.Z = it.Z[:2]
		err := it.Validate()
		require.ErrorIs(t, err, ErrInvalidDocument)
		assert.Contains(t, err.Error(), "z has 2 entries")
	})

	t.Run("cell in two duplicate groups", func(t *testing.T) {
		it := validIteration()
		it.DuplicateGroups = [][]int64{{1, 2}, {2, 3}}
		require.ErrorIs(t, it.Validate(), ErrInvalidDocument)
	})

	t.Run("missing encoding id", func(t *testing.T) {
		it := validIteration()
		it.EncodingID = ""
		require.ErrorIs(t, it.Validate(), ErrInvalidDocument)
	})
}

func TestEncodingValidate(t *testing.T) {
	enc := &Encoding{ID: "LR9990", DefaultIteration: 1412, Sources: Sources{BarcodesFile: "S"}}
	require.NoError(t, enc.Validate())
	assert.Equal(t, "S", enc.SourceID())

	require.ErrorIs(t, (&Encoding{}).Validate(), ErrInvalidDocument)
	require.ErrorIs(t, (&Encoding{ID: "x", AvailableIterations: []int{-1}}).Validate(), ErrInvalidDocument)
}

func TestCellGenesAtLeast(t *testing.T) {
	cell := &Cell{
		SourceID: "S",
		CellID:   3,
		Genes: []GeneValue{
			{EnsemblID: "E1", MGISymbol: "Gm1", Value: 5},
			{EnsemblID: "E2", MGISymbol: "Gm2", Value: 2},
		},
	}
	require.NoError(t, cell.Validate())

	assert.Len(t, cell.GenesAtLeast(0), 2)
	assert.Equal(t, []GeneValue{cell.Genes[0]}, cell.GenesAtLeast(5))
	assert.Empty(t, cell.GenesAtLeast(6))
}

func TestGeneValidate(t *testing.T) {
	gene := &Gene{SourceID: "S", EnsemblID: "G1", CellIDs: []int64{1, 3}}
	require.NoError(t, gene.Validate())
	assert.Contains(t, gene.CellSet(), int64(3))
	assert.NotContains(t, gene.CellSet(), int64(2))

	require.ErrorIs(t, (&Gene{SourceID: "S"}).Validate(), ErrInvalidDocument)
}
