package repository

import (
	"context"
	"fmt"

	"github.com/clusterdeck/clusterdeck/internal/cache"
	"github.com/clusterdeck/clusterdeck/internal/metrics"
	"github.com/clusterdeck/clusterdeck/internal/models"
)

// CachedTokenRepository serves Get from the token cache and falls back to
// the wrapped repository on a miss. Every authenticated request performs a
// Get, so only that path is cached.
type CachedTokenRepository struct {
	repo  TokenRepository
	cache cache.TokenCacher
}

var _ TokenRepository = (*CachedTokenRepository)(nil)

// NewCachedTokenRepository wraps repo with tokenCache.
func NewCachedTokenRepository(repo TokenRepository, tokenCache cache.TokenCacher) *CachedTokenRepository {
	return &CachedTokenRepository{repo: repo, cache: tokenCache}
}

// Create stores the token and warms the cache. Cache errors are ignored.
func (c *CachedTokenRepository) Create(ctx context.Context, create *models.TokenCreate) (*models.Token, error) {
	t, err := c.repo.Create(ctx, create)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(ctx, t)
	return t, nil
}

// Get checks the cache first and populates it after a database read.
func (c *CachedTokenRepository) Get(ctx context.Context, name string) (*models.Token, error) {
	if t, err := c.cache.Get(ctx, name); err == nil {
		metrics.RecordCacheHit()
		return t, nil
	}
	metrics.RecordCacheMiss()

	t, err := c.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(ctx, t)
	return t, nil
}

func (c *CachedTokenRepository) List(ctx context.Context, userID string) ([]*models.Token, error) {
	return c.repo.List(ctx, userID)
}

// Delete removes the row and then evicts the cache entry. The entry is
// evicted once more after the row is gone, since a Get that ran in between
// may have cached it again. An eviction failure is returned: the token
// would otherwise keep authenticating until the entry expires.
func (c *CachedTokenRepository) Delete(ctx context.Context, name string) error {
	_ = c.cache.Delete(ctx, name)
	err := c.repo.Delete(ctx, name)
	if evictErr := c.cache.Delete(ctx, name); evictErr != nil && err == nil {
		return fmt.Errorf("token %s deleted but cache eviction failed: %w", name, evictErr)
	}
	return err
}

func (c *CachedTokenRepository) Exists(ctx context.Context, name string) (bool, error) {
	return c.repo.Exists(ctx, name)
}

// BatchRecordUsage writes through. Cached copies keep their stale usage
// counters until they expire; authentication does not read them.
func (c *CachedTokenRepository) BatchRecordUsage(ctx context.Context, counts map[string]int64) error {
	return c.repo.BatchRecordUsage(ctx, counts)
}

func (c *CachedTokenRepository) HealthCheck(ctx context.Context) error {
	return c.repo.HealthCheck(ctx)
}
