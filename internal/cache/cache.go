// Package cache provides caching for rendered iteration previews.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// Config contains cache configuration.
type Config struct {
	PreviewCacheSizeMB int
	PreviewTTL         time.Duration
	MaxPreviewBytes    int
}

// Manager manages the preview image cache.
type Manager struct {
	previews *bigcache.BigCache
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.PreviewTTL <= 0 {
		cfg.PreviewTTL = 30 * time.Minute
	}
	if cfg.MaxPreviewBytes <= 0 {
		cfg.MaxPreviewBytes = 512 * 1024
	}

	previewConfig := bigcache.Config{
		Shards:             64,
		LifeWindow:         cfg.PreviewTTL,
		CleanWindow:        cfg.PreviewTTL / 2,
		MaxEntriesInWindow: 4096,
		MaxEntrySize:       cfg.MaxPreviewBytes,
		HardMaxCacheSize:   cfg.PreviewCacheSizeMB,
		Verbose:            false,
	}

	previews, err := bigcache.New(context.Background(), previewConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create preview cache: %w", err)
	}

	return &Manager{previews: previews}, nil
}

// GetPreview retrieves a preview from cache.
func (m *Manager) GetPreview(key string) ([]byte, bool) {
	data, err := m.previews.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetPreview stores a preview in cache.
func (m *Manager) SetPreview(key string, data []byte) error {
	return m.previews.Set(key, data)
}

// DeletePreview drops a preview. Deleting a missing key is not an error.
func (m *Manager) DeletePreview(key string) error {
	err := m.previews.Delete(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

// PreviewKey generates a cache key for an iteration preview.
func PreviewKey(encodingID string, iteration, size int, colorscale string) string {
	return fmt.Sprintf("preview:%s/%d:%d:%s", encodingID, iteration, size, colorscale)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	s := m.previews.Stats()
	return map[string]interface{}{
		"preview_cache_len":    m.previews.Len(),
		"preview_cache_cap":    m.previews.Capacity(),
		"preview_cache_hits":   s.Hits,
		"preview_cache_misses": s.Misses,
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.previews.Close()
}
