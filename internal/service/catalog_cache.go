package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
)

// Catalog cache scopes. Keys are "catalog:<scope>:<parts...>".
const (
	scopeCategories = "categories"
	scopeOrg        = "org"
	scopeQuestions  = "questions"
)

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Purge(ctx context.Context, pattern string) (int64, error)
}

// CatalogCache is a read-through cache for catalog, allocation and question
// listings. A nil *CatalogCache is valid and always loads from the source.
// Cache failures never fail a request; they degrade to a direct load.
type CatalogCache struct {
	store   cacheStore
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCatalogCache wraps store. It returns nil when store is nil.
func NewCatalogCache(store cacheStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *CatalogCache {
	if store == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogCache{store: store, metrics: metrics, ttl: ttl, logger: logger}
}

func catalogKey(scope string, parts ...string) string {
	return "catalog:" + scope + ":" + strings.Join(parts, ":")
}

func (c *CatalogCache) lookup(ctx context.Context, key string, dest interface{}) bool {
	start := time.Now()
	err := c.store.Get(ctx, key, dest)
	switch {
	case err == nil:
		c.metrics.ObserveCacheLookup("hit", time.Since(start))
		return true
	case errors.Is(err, appErrors.ErrCacheMiss):
		c.metrics.ObserveCacheLookup("miss", time.Since(start))
	default:
		c.metrics.ObserveCacheLookup("error", time.Since(start))
		c.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
	}
	return false
}

func (c *CatalogCache) fill(ctx context.Context, key string, value interface{}) {
	start := time.Now()
	if err := c.store.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	c.metrics.ObserveCacheFill(time.Since(start))
}

// Evict drops every entry in the given scopes.
func (c *CatalogCache) Evict(ctx context.Context, scopes ...string) {
	if c == nil {
		return
	}
	for _, scope := range scopes {
		n, err := c.store.Purge(ctx, catalogKey(scope, "*"))
		if err != nil {
			c.logger.Warn("catalog cache eviction failed", zap.String("scope", scope), zap.Error(err))
			continue
		}
		c.metrics.AddCacheEvictions(scope, n)
	}
}

// readThrough returns the entry under key, calling load and storing its result on a miss.
func readThrough[T any](ctx context.Context, c *CatalogCache, key string, load func() (T, error)) (T, error) {
	if c == nil {
		return load()
	}
	var cached T
	if c.lookup(ctx, key, &cached) {
		return cached, nil
	}
	value, err := load()
	if err != nil {
		return value, err
	}
	c.fill(ctx, key, value)
	return value, nil
}
