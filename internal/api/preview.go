package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cellcomm/cellan/internal/cache"
	"github.com/cellcomm/cellan/internal/viewstate"
	"github.com/cellcomm/cellan/pkg/colormap"
)

// previewHandler renders an iteration as a PNG scatter plot colored by z.
// The colorscale query parameter selects a registered colorscale.
func previewHandler(cfg RouterConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eid := chi.URLParam(r, "encId")
		it, err := strconv.Atoi(chi.URLParam(r, "it"))
		if err != nil {
			http.NotFound(w, r)
			return
		}

		scale := cfg.Colorscale
		if name := r.URL.Query().Get("colorscale"); name != "" {
			cm, err := colormap.ByName(name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			scale = cm.Name()
		}

		key := cache.PreviewKey(eid, it, cfg.Renderer.Size(), scale)
		if cfg.Cache != nil {
			if data, ok := cfg.Cache.GetPreview(key); ok {
				cfg.Metrics.ObservePreviewCache(true)
				writePNG(w, data)
				return
			}
			cfg.Metrics.ObservePreviewCache(false)
		}

		enc, found, err := cfg.Queries.GetEncoding(r.Context(), eid)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !found {
			http.NotFound(w, r)
			return
		}
		iteration, found, err := cfg.Queries.GetIteration(r.Context(), eid, it)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !found {
			http.NotFound(w, r)
			return
		}

		state := viewstate.Initial(cfg.Threshold).Navigated(enc, iteration)
		data, err := cfg.Renderer.RenderPNG(state.Points(), state.Style(scale, cfg.MarkerSize))
		if err != nil {
			logger.Error("render preview", zap.String("encoding", eid), zap.Int("iteration", it), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if cfg.Cache != nil {
			if err := cfg.Cache.SetPreview(key, data); err != nil {
				logger.Warn("cache preview", zap.String("key", key), zap.Error(err))
			}
		}
		writePNG(w, data)
	}
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
