// Package query provides the typed read-only lookups behind the cellan API.
//
// Every lookup returns the document, whether it was found, and an error that
// is reserved for store failures. A miss is never an error.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cellcomm/cellan/internal/metrics"
	"github.com/cellcomm/cellan/internal/model"
)

// Store is the subset of the document store the service reads from.
type Store interface {
	GetEncoding(ctx context.Context, encodingID string) (*model.Encoding, error)
	ListEncodings(ctx context.Context) ([]*model.Encoding, error)
	GetIteration(ctx context.Context, encodingID string, iteration int) (*model.Iteration, error)
	GetCell(ctx context.Context, sourceID string, cellID int64) (*model.Cell, error)
	GetGene(ctx context.Context, sourceID, ensemblID string) (*model.Gene, error)
	GetGeneBySymbol(ctx context.Context, sourceID, symbol string) (*model.Gene, error)
}

// Config contains query service configuration.
type Config struct {
	Store             Store
	EncodingCacheSize int
	EncodingTTL       time.Duration
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
}

// Service answers encoding, iteration, cell and gene lookups.
// Encodings are small and read on every page load, so found encodings are
// kept in an expirable LRU and concurrent misses share one store read.
type Service struct {
	store     Store
	encodings *expirable.LRU[string, *model.Encoding]
	flight    singleflight.Group
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewService creates a query service.
func NewService(cfg Config) *Service {
	if cfg.EncodingCacheSize <= 0 {
		cfg.EncodingCacheSize = 256
	}
	if cfg.EncodingTTL <= 0 {
		cfg.EncodingTTL = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:     cfg.Store,
		encodings: expirable.NewLRU[string, *model.Encoding](cfg.EncodingCacheSize, nil, cfg.EncodingTTL),
		metrics:   cfg.Metrics,
		logger:    logger.Named("query"),
	}
}

// GetEncoding looks up an encoding by id. The returned document is shared
// with the cache and must not be modified.
func (s *Service) GetEncoding(ctx context.Context, encodingID string) (*model.Encoding, bool, error) {
	if enc, ok := s.encodings.Get(encodingID); ok {
		s.metrics.ObserveLookup("encodings", metrics.OutcomeFound)
		return enc, true, nil
	}

	v, err, _ := s.flight.Do(encodingID, func() (interface{}, error) {
		enc, err := s.store.GetEncoding(ctx, encodingID)
		if err != nil {
			return nil, err
		}
		if enc != nil {
			s.encodings.Add(encodingID, enc)
		}
		return enc, nil
	})
	if err != nil {
		return nil, false, s.fail("encodings", err, zap.String("encoding", encodingID))
	}

	enc := v.(*model.Encoding)
	return enc, s.observe("encodings", enc != nil), nil
}

// ListEncodings returns all encodings ordered by id.
func (s *Service) ListEncodings(ctx context.Context) ([]*model.Encoding, error) {
	encodings, err := s.store.ListEncodings(ctx)
	if err != nil {
		return nil, s.fail("encodings", err)
	}
	return encodings, nil
}

// GetIteration looks up one iteration of an encoding.
func (s *Service) GetIteration(ctx context.Context, encodingID string, iteration int) (*model.Iteration, bool, error) {
	it, err := s.store.GetIteration(ctx, encodingID, iteration)
	if err != nil {
		return nil, false, s.fail("iterations", err,
			zap.String("encoding", encodingID), zap.Int("iteration", iteration))
	}
	return it, s.observe("iterations", it != nil), nil
}

// GetCell looks up one cell of a source.
func (s *Service) GetCell(ctx context.Context, sourceID string, cellID int64) (*model.Cell, bool, error) {
	cell, err := s.store.GetCell(ctx, sourceID, cellID)
	if err != nil {
		return nil, false, s.fail("cells", err,
			zap.String("source", sourceID), zap.Int64("cell", cellID))
	}
	return cell, s.observe("cells", cell != nil), nil
}

// GetGene looks up one gene of a source by ensembl id.
func (s *Service) GetGene(ctx context.Context, sourceID, ensemblID string) (*model.Gene, bool, error) {
	gene, err := s.store.GetGene(ctx, sourceID, ensemblID)
	if err != nil {
		return nil, false, s.fail("genes", err,
			zap.String("source", sourceID), zap.String("gene", ensemblID))
	}
	return gene, s.observe("genes", gene != nil), nil
}

// LookupGene resolves key as an ensembl id first and as an MGI symbol second.
func (s *Service) LookupGene(ctx context.Context, sourceID, key string) (*model.Gene, bool, error) {
	gene, found, err := s.GetGene(ctx, sourceID, key)
	if err != nil || found {
		return gene, found, err
	}

	gene, err = s.store.GetGeneBySymbol(ctx, sourceID, key)
	if err != nil {
		return nil, false, s.fail("genes", err,
			zap.String("source", sourceID), zap.String("symbol", key))
	}
	return gene, s.observe("genes", gene != nil), nil
}

// Invalidate drops a cached encoding so the next lookup reads the store.
func (s *Service) Invalidate(encodingID string) {
	s.encodings.Remove(encodingID)
}

func (s *Service) observe(collection string, found bool) bool {
	if found {
		s.metrics.ObserveLookup(collection, metrics.OutcomeFound)
	} else {
		s.metrics.ObserveLookup(collection, metrics.OutcomeNotFound)
	}
	return found
}

func (s *Service) fail(collection string, err error, fields ...zap.Field) error {
	s.metrics.ObserveLookup(collection, metrics.OutcomeError)
	s.logger.Error("store lookup failed",
		append(fields, zap.String("collection", collection), zap.Error(err))...)
	return fmt.Errorf("%s lookup: %w", collection, err)
}
