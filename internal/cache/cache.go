// Package cache provides caching for rendered figures and query results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	FigureCacheSizeMB int
	FigureTTL         time.Duration
	QueryCacheSize    int
}

// Manager manages figure and query caches.
type Manager struct {
	figureCache *bigcache.BigCache
	queryCache  *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	figureCacheConfig := bigcache.Config{
		Shards:             256,
		LifeWindow:         cfg.FigureTTL,
		CleanWindow:        cfg.FigureTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       512 * 1024, // 512KB per figure
		HardMaxCacheSize:   cfg.FigureCacheSizeMB,
		Verbose:            false,
	}

	figureCache, err := bigcache.New(context.Background(), figureCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create figure cache: %w", err)
	}

	queryCache, err := lru.New[string, []byte](cfg.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &Manager{
		figureCache: figureCache,
		queryCache:  queryCache,
	}, nil
}

// GetFigure retrieves a rendered figure from cache.
func (m *Manager) GetFigure(key string) ([]byte, bool) {
	data, err := m.figureCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetFigure stores a rendered figure in cache.
func (m *Manager) SetFigure(key string, data []byte) error {
	return m.figureCache.Set(key, data)
}

// GetQuery retrieves a query result from cache.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	return m.queryCache.Get(key)
}

// SetQuery stores a query result in cache.
func (m *Manager) SetQuery(key string, data []byte) {
	m.queryCache.Add(key, data)
}

// FigureKey generates a cache key for a rendered figure. The selection is
// hashed so that distinct selections never collide.
func FigureKey(datasetID, kind string, sel interface{}) string {
	base := fmt.Sprintf("fig:%s:%s", datasetID, kind)

	encoded, err := json.Marshal(sel)
	if err != nil {
		return base
	}
	sum := sha256.Sum256(encoded)
	return base + ":" + hex.EncodeToString(sum[:])[:16]
}

// QueryKey generates a cache key for a derived-view query.
func QueryKey(datasetID, field, value string) string {
	return fmt.Sprintf("query:%s:%s:%s", datasetID, field, value)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"figure_cache_len": m.figureCache.Len(),
		"figure_cache_cap": m.figureCache.Capacity(),
		"query_cache_len":  m.queryCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.figureCache.Close()
}
