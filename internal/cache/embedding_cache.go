// Package cache provides a Redis-backed cache for text embeddings so repeated
// matching of the same receipt text does not re-call the embedding service.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stocklens/stocklens-backend/internal/normalize"
	"github.com/stocklens/stocklens-backend/logger"
)

const keyPrefix = "embedding:"

// DefaultTTL mirrors the catalog's embedding refresh cadence.
const DefaultTTL = 7 * 24 * time.Hour

// EmbeddingCache stores embedding vectors keyed by normalized text.
// Concurrent writers to the same key may race; last-write-wins is fine since
// values are idempotent recomputations of the same text.
type EmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEmbeddingCache creates a cache with the given TTL. A non-positive TTL
// falls back to DefaultTTL.
func NewEmbeddingCache(client *redis.Client, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &EmbeddingCache{client: client, ttl: ttl}
}

// Key returns the cache key for a piece of text. Exposed for tests.
func Key(text string) string {
	return keyPrefix + normalize.Fold(text)
}

// Get returns the cached embedding for text, or (nil, false) on miss or
// error. Cache errors are logged and treated as misses so a degraded Redis
// never fails a pipeline task.
func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool) {
	raw, err := c.client.Get(ctx, Key(text)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.GetLogger().Warnw("Embedding cache read failed", "error", err)
		}
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		logger.GetLogger().Warnw("Embedding cache entry corrupt, dropping", "error", err)
		return nil, false
	}
	return vec, true
}

// Put stores an embedding for text with the cache TTL.
func (c *EmbeddingCache) Put(ctx context.Context, text string, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	if err := c.client.SetEx(ctx, Key(text), string(raw), c.ttl).Err(); err != nil {
		return fmt.Errorf("cache embedding: %w", err)
	}
	return nil
}

// Delete removes the cached embedding for text.
func (c *EmbeddingCache) Delete(ctx context.Context, text string) error {
	return c.client.Del(ctx, Key(text)).Err()
}
