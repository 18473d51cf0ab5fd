package ai

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/stocklens/stocklens-backend/errors"
	"github.com/stocklens/stocklens-backend/internal/cache"
	"github.com/stocklens/stocklens-backend/logger"
)

// Embedder produces an embedding vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CachingEmbedder wraps an Embedder with the Redis embedding cache and
// enforces the configured vector dimensionality. A vector of the wrong
// dimension coming back from the model is a configuration error, never
// silently padded or truncated.
type CachingEmbedder struct {
	inner Embedder
	cache *cache.EmbeddingCache
	dim   int
	log   *zap.SugaredLogger
}

// NewCachingEmbedder wires an embedder to the cache. cache may be nil, in
// which case every call goes to the model.
func NewCachingEmbedder(inner Embedder, c *cache.EmbeddingCache, dim int) *CachingEmbedder {
	return &CachingEmbedder{
		inner: inner,
		cache: c,
		dim:   dim,
		log:   logger.GetLogger().Named("embedder"),
	}
}

func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if vec, ok := e.cache.Get(ctx, text); ok {
			// A stale entry from a previous embedding model is treated as a
			// miss and overwritten below.
			if len(vec) == e.dim {
				return vec, nil
			}
			e.log.Warnw("Discarding cached embedding with stale dimension",
				"got", len(vec), "want", e.dim)
		}
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != e.dim {
		return nil, apperrors.DimensionMismatch(len(vec), e.dim)
	}

	if e.cache != nil {
		if err := e.cache.Put(ctx, text, vec); err != nil {
			e.log.Warnw("Failed to cache embedding", "error", err)
		}
	}
	return vec, nil
}
