package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/BackOfficeGo/internal/domain"
)

type countingSource struct {
	catalog []domain.PromotionDefinition
	err     error
	calls   int
}

func (s *countingSource) ListCatalog(context.Context) ([]domain.PromotionDefinition, error) {
	s.calls++
	return s.catalog, s.err
}

func setupCache(t *testing.T, source *countingSource) (*CatalogCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCatalogCache(client, source, 5*time.Minute, logger), mr
}

func sampleCatalog() []domain.PromotionDefinition {
	buy, get := 2, 1
	return []domain.PromotionDefinition{
		{
			ID:                   "p-1",
			Code:                 "B2G1",
			Name:                 "Buy two get one",
			Model:                domain.BuyNGetMFree{BuyQuantity: &buy, GetQuantity: &get},
			IsActive:             true,
			ApplicableProducts:   []string{"donut"},
			ApplicableCategories: []string{},
		},
	}
}

// ---------------------------------------------------------------------------
// ListCatalog
// ---------------------------------------------------------------------------

func TestCatalogCache_MissThenHit(t *testing.T) {
	source := &countingSource{catalog: sampleCatalog()}
	cache, mr := setupCache(t, source)
	ctx := context.Background()

	hitsBefore := testutil.ToFloat64(CatalogCacheRequests.WithLabelValues("hit"))

	first, err := cache.ListCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
	assert.True(t, mr.Exists(CatalogKey))
	assert.Equal(t, 5*time.Minute, mr.TTL(CatalogKey))

	second, err := cache.ListCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls, "second read must be served from redis")
	assert.Equal(t, first[0].Model, second[0].Model)
	assert.Equal(t, first[0].ApplicableProducts, second[0].ApplicableProducts)

	assert.Equal(t, hitsBefore+1, testutil.ToFloat64(CatalogCacheRequests.WithLabelValues("hit")))
}

func TestCatalogCache_Invalidate(t *testing.T) {
	source := &countingSource{catalog: sampleCatalog()}
	cache, mr := setupCache(t, source)
	ctx := context.Background()

	_, err := cache.ListCatalog(ctx)
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx))
	assert.False(t, mr.Exists(CatalogKey))

	_, err = cache.ListCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestCatalogCache_CorruptEntryFallsBackToSource(t *testing.T) {
	source := &countingSource{catalog: sampleCatalog()}
	cache, mr := setupCache(t, source)
	require.NoError(t, mr.Set(CatalogKey, "{{not-json"))

	got, err := cache.ListCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, source.calls)
}

func TestCatalogCache_RedisDownFallsBackToSource(t *testing.T) {
	source := &countingSource{catalog: sampleCatalog()}
	cache, mr := setupCache(t, source)
	mr.Close()

	got, err := cache.ListCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCatalogCache_SourceErrorIsReturned(t *testing.T) {
	source := &countingSource{err: errors.New("db down")}
	cache, mr := setupCache(t, source)

	_, err := cache.ListCatalog(context.Background())
	require.Error(t, err)
	assert.False(t, mr.Exists(CatalogKey), "failures are not cached")
}

func TestCatalogCache_EmptyCatalogIsCached(t *testing.T) {
	source := &countingSource{catalog: []domain.PromotionDefinition{}}
	cache, _ := setupCache(t, source)
	ctx := context.Background()

	for range 2 {
		got, err := cache.ListCatalog(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Equal(t, 1, source.calls)
}
