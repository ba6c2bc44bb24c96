package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cellcomm/cellan/internal/api"
	"github.com/cellcomm/cellan/internal/cache"
	"github.com/cellcomm/cellan/internal/config"
	"github.com/cellcomm/cellan/internal/metrics"
	"github.com/cellcomm/cellan/internal/query"
	"github.com/cellcomm/cellan/internal/render"
	"github.com/cellcomm/cellan/internal/store"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cfg, logger)
		},
	}
}

func openStore(cfg *config.Config) (*store.Store, error) {
	s, err := store.Open(cfg.Store.URL, store.Tables{
		Encodings:  cfg.Store.Encodings,
		Iterations: cfg.Store.Iterations,
		Cells:      cfg.Store.Cells,
		Genes:      cfg.Store.Genes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", cfg.Store.URL, err)
	}
	return s, nil
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting cellan server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("prefix", cfg.Server.PathPrefix),
		zap.Bool("maintenance", cfg.IsMaintenance()))

	// Initialize components
	docs, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer docs.Close()

	m := metrics.New()
	queries := query.NewService(query.Config{
		Store:             docs,
		EncodingCacheSize: cfg.Cache.EncodingCacheSize,
		EncodingTTL:       time.Duration(cfg.Cache.EncodingTTLMinutes) * time.Minute,
		Metrics:           m,
		Logger:            logger,
	})

	cacheManager, err := cache.NewManager(cache.Config{
		PreviewCacheSizeMB: cfg.Cache.PreviewSizeMB,
		PreviewTTL:         time.Duration(cfg.Cache.PreviewTTLMinutes) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheManager.Close()

	renderer := render.NewScatterRenderer(render.Config{
		Size:              cfg.Render.PreviewSize,
		DefaultColorscale: cfg.Render.Colorscale,
	})

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Queries:         queries,
		Health:          docs.Ping,
		Cache:           cacheManager,
		Renderer:        renderer,
		Metrics:         m,
		Logger:          logger,
		PathPrefix:      cfg.Server.PathPrefix,
		DefaultEncoding: cfg.Data.DefaultEncoding,
		Title:           cfg.Server.Title,
		Maintenance:     cfg.IsMaintenance(),
		CORSOrigins:     cfg.Server.CORSOrigins,
		StaticMaxAge:    cfg.Server.StaticMaxAge(),
		Colorscale:      cfg.Render.Colorscale,
		MarkerSize:      cfg.Render.MarkerSize,
		Threshold:       cfg.Render.Threshold,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("url", fmt.Sprintf("http://%s%s", server.Addr, cfg.Server.PathPrefix)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down server...", zap.Any("cache", cacheManager.Stats()))

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
	return nil
}
