// Package matcher resolves extracted item names to catalog products via
// embedding similarity.
package matcher

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/stocklens/stocklens-backend/internal/normalize"
	"github.com/stocklens/stocklens-backend/internal/store"
	"github.com/stocklens/stocklens-backend/logger"
	"github.com/stocklens/stocklens-backend/types"
)

// Embedder produces an embedding vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorReader is the catalog capability the matcher needs: a nearest
// neighbor scan over embedded products.
type VectorReader interface {
	FindNearest(ctx context.Context, embedding pgvector.Vector, limit int) ([]store.Neighbor, error)
}

// Matcher maps item names to their single best catalog product. An item
// whose best similarity falls below the configured floor stays unmatched but
// keeps its similarity score for the review UI.
type Matcher struct {
	embedder Embedder
	catalog  VectorReader
	floor    float64
	log      *zap.SugaredLogger
}

// New creates a Matcher. floor is the minimum similarity for a match to
// count; zero disables the floor and the nearest product always wins.
func New(embedder Embedder, catalog VectorReader, floor float64) *Matcher {
	return &Matcher{
		embedder: embedder,
		catalog:  catalog,
		floor:    floor,
		log:      logger.GetLogger().Named("matcher"),
	}
}

// Match embeds the normalized item name and returns its top-1 catalog match.
// An empty catalog or a below-floor best candidate yields an unmatched
// result, not an error.
func (m *Matcher) Match(ctx context.Context, name string) (types.MatchedProduct, error) {
	folded := normalize.Fold(name)
	if folded == "" {
		return types.MatchedProduct{}, fmt.Errorf("cannot match empty item name")
	}

	vec, err := m.embedder.Embed(ctx, folded)
	if err != nil {
		return types.MatchedProduct{}, fmt.Errorf("embedding %q: %w", name, err)
	}

	neighbors, err := m.catalog.FindNearest(ctx, pgvector.NewVector(vec), 1)
	if err != nil {
		return types.MatchedProduct{}, fmt.Errorf("vector scan for %q: %w", name, err)
	}
	if len(neighbors) == 0 {
		m.log.Debugw("No embedded products in catalog", "item", name)
		return types.MatchedProduct{}, nil
	}

	best := neighbors[0]
	similarity := 1 - best.Distance
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}

	if m.floor > 0 && similarity < m.floor {
		m.log.Debugw("Best candidate below similarity floor",
			"item", name, "candidate", best.Name, "similarity", similarity, "floor", m.floor)
		return types.MatchedProduct{Similarity: similarity}, nil
	}

	return types.MatchedProduct{
		ProductID:   best.ProductID,
		ProductName: best.Name,
		Unit:        best.Unit,
		Similarity:  similarity,
	}, nil
}
