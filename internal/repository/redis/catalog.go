package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/BackOfficeGo/internal/domain"
	"github.com/utafrali/BackOfficeGo/internal/repository"
)

// CatalogKey is the Redis key holding the serialized promotion catalog.
const CatalogKey = "promotions:catalog"

// CatalogCacheRequests counts catalog lookups by outcome (hit, miss, error).
var CatalogCacheRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "promotion_catalog_cache_requests_total",
		Help: "Promotion catalog cache lookups by result",
	},
	[]string{"result"},
)

// CatalogCache is a read-through cache in front of another CatalogProvider.
// Redis failures degrade to the source; they are logged, never returned.
type CatalogCache struct {
	client redis.Cmdable
	source repository.CatalogProvider
	ttl    time.Duration
	logger *slog.Logger
}

// NewCatalogCache creates a Redis-backed catalog cache.
func NewCatalogCache(client redis.Cmdable, source repository.CatalogProvider, ttl time.Duration, logger *slog.Logger) *CatalogCache {
	return &CatalogCache{
		client: client,
		source: source,
		ttl:    ttl,
		logger: logger,
	}
}

var _ repository.CatalogProvider = (*CatalogCache)(nil)

// ListCatalog returns the cached catalog, loading and storing it on a miss.
func (c *CatalogCache) ListCatalog(ctx context.Context) ([]domain.PromotionDefinition, error) {
	data, err := c.client.Get(ctx, CatalogKey).Bytes()
	switch {
	case err == nil:
		var catalog []domain.PromotionDefinition
		decodeErr := json.Unmarshal(data, &catalog)
		if decodeErr == nil {
			CatalogCacheRequests.WithLabelValues("hit").Inc()
			return catalog, nil
		}
		CatalogCacheRequests.WithLabelValues("error").Inc()
		c.logger.WarnContext(ctx, "discarding unreadable cached catalog", slog.String("error", decodeErr.Error()))
	case errors.Is(err, redis.Nil):
		CatalogCacheRequests.WithLabelValues("miss").Inc()
	default:
		CatalogCacheRequests.WithLabelValues("error").Inc()
		c.logger.WarnContext(ctx, "redis get catalog failed, reading source", slog.String("error", err.Error()))
	}

	catalog, err := c.source.ListCatalog(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(catalog); err != nil {
		c.logger.WarnContext(ctx, "marshal catalog for cache failed", slog.String("error", err.Error()))
	} else if err := c.client.Set(ctx, CatalogKey, data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "redis set catalog failed", slog.String("error", err.Error()))
	}
	return catalog, nil
}

// Invalidate drops the cached catalog so the next read goes to the source.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, CatalogKey).Err(); err != nil {
		return fmt.Errorf("redis del catalog: %w", err)
	}
	return nil
}
