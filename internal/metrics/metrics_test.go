package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/cell/{sid}/{cid}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, cid := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/cell/S/"+cid, nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("/api/cell/{sid}/{cid}", http.MethodGet, "404"))
	assert.Equal(t, 3.0, got)
}

func TestLookupsAndHandler(t *testing.T) {
	m := New()
	m.ObserveLookup("cells", OutcomeFound)
	m.ObserveLookup("cells", OutcomeNotFound)
	m.ObservePreviewCache(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("cells", OutcomeNotFound)))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cellan_store_lookups_total")
	assert.Contains(t, rec.Body.String(), `cellan_preview_cache_requests_total{result="hit"} 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveLookup("cells", OutcomeFound)
	m.ObservePreviewCache(false)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Middleware(next))
}
