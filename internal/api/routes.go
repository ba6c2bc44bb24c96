// Package api provides the HTTP handlers of the cellan server.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/cellcomm/cellan/internal/cache"
	"github.com/cellcomm/cellan/internal/logging"
	"github.com/cellcomm/cellan/internal/metrics"
	"github.com/cellcomm/cellan/internal/model"
	"github.com/cellcomm/cellan/internal/render"
)

// Queries is the read side the handlers serve from.
type Queries interface {
	GetEncoding(ctx context.Context, encodingID string) (*model.Encoding, bool, error)
	ListEncodings(ctx context.Context) ([]*model.Encoding, error)
	GetIteration(ctx context.Context, encodingID string, iteration int) (*model.Iteration, bool, error)
	GetCell(ctx context.Context, sourceID string, cellID int64) (*model.Cell, bool, error)
	LookupGene(ctx context.Context, sourceID, key string) (*model.Gene, bool, error)
}

// RouterConfig contains router configuration.
type RouterConfig struct {
	Queries Queries
	// Health reports whether the store is reachable. Nil means always healthy.
	Health func(ctx context.Context) error

	// Cache and Renderer back the preview route, which is only mounted
	// when Renderer is set. Cache may be nil.
	Cache    *cache.Manager
	Renderer *render.ScatterRenderer

	Metrics *metrics.Metrics
	Logger  *zap.Logger

	PathPrefix      string
	DefaultEncoding string
	Title           string
	Maintenance     bool
	CORSOrigins     []string
	StaticMaxAge    time.Duration
	Colorscale      string
	MarkerSize      float64
	Threshold       int
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.PathPrefix = normalizePrefix(cfg.PathPrefix)
	if cfg.Colorscale == "" {
		cfg.Colorscale = "jet"
	}
	if cfg.MarkerSize <= 0 {
		cfg.MarkerSize = 4
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cfg.Metrics.Middleware)

	// CORS
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				logger.Error("health check failed", zap.Error(err))
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", cfg.Metrics.Handler())

	pages := newPages(cfg, logger)
	app := func(r chi.Router) {
		if cfg.Maintenance {
			r.Use(pages.maintenance)
		}

		r.Get("/", pages.root)
		r.Handle("/static/*", staticHandler(cfg.PathPrefix, cfg.StaticMaxAge))

		r.Route("/api", func(r chi.Router) {
			r.Get("/encoding/{encId}", encodingHandler(cfg.Queries))
			r.Get("/encit/{encId}/{it}", iterationHandler(cfg.Queries))
			if cfg.Renderer != nil {
				r.Get("/encit/{encId}/{it}/preview.png", previewHandler(cfg, logger))
			}
			r.Get("/cell/{sid}/{cid}", cellHandler(cfg.Queries))
			r.Get("/gene/{sid}/{gene}", geneHandler(cfg.Queries))
		})

		r.Get("/{encId}", pages.encoding)
		r.Get("/{encId}/{it}", pages.iteration)
	}
	if cfg.PathPrefix == "" {
		// group middleware only wraps matched routes
		if cfg.Maintenance {
			down := pages.maintenance(nil)
			r.NotFound(down.ServeHTTP)
			r.MethodNotAllowed(down.ServeHTTP)
		}
		r.Group(app)
	} else {
		r.Route(cfg.PathPrefix, app)
	}

	return r
}

// normalizePrefix returns prefix with a leading and no trailing slash, or
// "" for the root.
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}

func encodingHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enc, found, err := q.GetEncoding(r.Context(), chi.URLParam(r, "encId"))
		respond(w, enc, found, err)
	}
}

func iterationHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		it, err := strconv.Atoi(chi.URLParam(r, "it"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		iteration, found, err := q.GetIteration(r.Context(), chi.URLParam(r, "encId"), it)
		respond(w, iteration, found, err)
	}
}

func cellHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cid, err := strconv.ParseInt(chi.URLParam(r, "cid"), 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		cell, found, err := q.GetCell(r.Context(), chi.URLParam(r, "sid"), cid)
		respond(w, cell, found, err)
	}
}

// geneHandler resolves the gene segment as an ensembl id and then as an
// MGI symbol.
func geneHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gene, found, err := q.LookupGene(r.Context(), chi.URLParam(r, "sid"), chi.URLParam(r, "gene"))
		respond(w, gene, found, err)
	}
}

// respond writes doc as JSON, 404 when it was not found, or 500 on a
// store error. Store errors are logged by the query layer.
func respond(w http.ResponseWriter, doc interface{}, found bool, err error) {
	switch {
	case err != nil:
		http.Error(w, "internal error", http.StatusInternalServerError)
	case !found:
		http.Error(w, "not found", http.StatusNotFound)
	default:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}
}
