package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellcomm/cellan/internal/model"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/cellan/api/encoding/LR9990", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"LR9990","defaultIteration":1412,"sources":{"barcodesFile":"S"}}`))
	})
	mux.HandleFunc("/cellan/api/encit/LR9990/1412", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"encodingId":"LR9990","iterationIndex":1412,"cellIds":[1,2],"names":["a","b"],"x":[0,1],"y":[0,1],"z":[3,4],"duplicateGroups":[]}`))
	})
	mux.HandleFunc("/cellan/api/encit/LR9990/7", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"encodingId":"LR9990","iterationIndex":7,"cellIds":[1,2],"names":["a"],"x":[0,1],"y":[0,1],"z":[3,4]}`))
	})
	mux.HandleFunc("/cellan/api/cell/S/1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sourceId":"S","cellId":1,"name":"a","genes":[{"ensemblId":"E1","mgiSymbol":"Sox17","value":5}]}`))
	})
	mux.HandleFunc("/cellan/api/cell/S/2", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})
	mux.HandleFunc("/cellan/api/gene/S/E1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sourceId":"S","ensemblId":"E1","mgiSymbol":"Sox17","cellIds":[1]}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_Documents(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL+"/cellan/", nil, nil)
	ctx := context.Background()

	enc, found, err := c.GetEncoding(ctx, "LR9990")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1412, enc.DefaultIteration)
	assert.Equal(t, "S", enc.SourceID())

	it, found, err := c.GetIteration(ctx, "LR9990", 1412)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, it.Len())

	cell, found, err := c.GetCell(ctx, "S", 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []model.GeneValue{{EnsemblID: "E1", MGISymbol: "Sox17", Value: 5}}, cell.Genes)

	gene, found, err := c.GetGene(ctx, "S", "E1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []int64{1}, gene.CellIDs)
}

func TestClient_NotFound(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL+"/cellan", nil, nil)

	enc, found, err := c.GetEncoding(context.Background(), "VLR0")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, enc)

	_, found, err = c.GetCell(context.Background(), "S", 99)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClient_Errors(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL+"/cellan", nil, nil)

	_, _, err := c.GetCell(context.Background(), "S", 2)
	assert.ErrorContains(t, err, "status 500")

	_, _, err = c.GetIteration(context.Background(), "LR9990", 7)
	assert.ErrorIs(t, err, model.ErrInvalidDocument)
}
