// Package cache provides Redis-backed caching.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clusterdeck/clusterdeck/internal/config"
	"github.com/clusterdeck/clusterdeck/internal/models"
)

// Common errors
var (
	ErrCacheMiss    = errors.New("cache miss")
	ErrCacheExpired = errors.New("cache entry expired")
)

// Cache is a byte-oriented key/value store with TTLs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// RedisCache implements Cache using Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisClient builds a client from cfg without connecting.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg *config.RedisConfig) (*RedisCache, error) {
	client := NewRedisClient(cfg)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Get retrieves a value, returning ErrCacheMiss for absent keys.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("cache get failed: %w", err)
	}
	return val, nil
}

// Set stores a value with a TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Delete removes a key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Exists reports whether key is present.
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists check failed: %w", err)
	}
	return n > 0, nil
}

// Ping checks if Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// HealthCheck satisfies handlers.HealthChecker.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx)
}

// Close closes the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// TokenCacher is the token cache used by the cached token repository.
type TokenCacher interface {
	Get(ctx context.Context, name string) (*models.Token, error)
	Set(ctx context.Context, token *models.Token) error
	Delete(ctx context.Context, name string) error
}

var _ TokenCacher = (*TokenCache)(nil)

// TokenCache stores tokens as JSON under keyPrefix+name. The key digest is
// cached along with the rest of the record so authentication can be served
// without a database round trip.
type TokenCache struct {
	cache      Cache
	keyPrefix  string
	defaultTTL time.Duration
}

// NewTokenCache creates a token cache. Empty values fall back to
// "token:" and five minutes.
func NewTokenCache(cache Cache, keyPrefix string, defaultTTL time.Duration) *TokenCache {
	if keyPrefix == "" {
		keyPrefix = "token:"
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &TokenCache{cache: cache, keyPrefix: keyPrefix, defaultTTL: defaultTTL}
}

// cachedToken mirrors models.Token, including the digest that the API
// representation hides.
type cachedToken struct {
	Name        string     `json:"name"`
	KeyHash     string     `json:"key_hash"`
	UserID      string     `json:"user_id"`
	Description string     `json:"description,omitempty"`
	Enabled     bool       `json:"enabled"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	UsageCount  int64      `json:"usage_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Get loads a token. Entries past their expiry are deleted and reported as
// ErrCacheExpired.
func (c *TokenCache) Get(ctx context.Context, name string) (*models.Token, error) {
	key := c.key(name)
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var ct cachedToken
	if err := json.Unmarshal(data, &ct); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached token: %w", err)
	}

	if ct.ExpiresAt != nil && time.Now().After(*ct.ExpiresAt) {
		_ = c.cache.Delete(ctx, key)
		return nil, ErrCacheExpired
	}

	return &models.Token{
		Name:        ct.Name,
		KeyHash:     ct.KeyHash,
		UserID:      ct.UserID,
		Description: ct.Description,
		Enabled:     ct.Enabled,
		ExpiresAt:   ct.ExpiresAt,
		LastUsedAt:  ct.LastUsedAt,
		UsageCount:  ct.UsageCount,
		CreatedAt:   ct.CreatedAt,
	}, nil
}

// Set stores a token with the default TTL, capped at the token's expiry.
// Expired tokens are not cached.
func (c *TokenCache) Set(ctx context.Context, token *models.Token) error {
	ttl := c.defaultTTL
	if token.ExpiresAt != nil {
		remaining := time.Until(*token.ExpiresAt)
		if remaining <= 0 {
			return nil
		}
		if remaining < ttl {
			ttl = remaining
		}
	}

	data, err := json.Marshal(cachedToken{
		Name:        token.Name,
		KeyHash:     token.KeyHash,
		UserID:      token.UserID,
		Description: token.Description,
		Enabled:     token.Enabled,
		ExpiresAt:   token.ExpiresAt,
		LastUsedAt:  token.LastUsedAt,
		UsageCount:  token.UsageCount,
		CreatedAt:   token.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	return c.cache.Set(ctx, c.key(token.Name), data, ttl)
}

// Delete evicts a token.
func (c *TokenCache) Delete(ctx context.Context, name string) error {
	return c.cache.Delete(ctx, c.key(name))
}

func (c *TokenCache) key(name string) string {
	return c.keyPrefix + name
}
