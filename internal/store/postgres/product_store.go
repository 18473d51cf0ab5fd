// Package postgres implements the store interfaces on PostgreSQL via pgx.
// Vector similarity relies on the pgvector extension; embeddings are stored
// in a vector column and scanned with the cosine distance operator.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/stocklens/stocklens-backend/internal/store"
	"github.com/stocklens/stocklens-backend/types"
)

// ProductStore implements store.ProductStore.
type ProductStore struct {
	db store.DB
}

// NewProductStore creates a new ProductStore instance.
func NewProductStore(db store.DB) *ProductStore {
	return &ProductStore{db: db}
}

// Create inserts a product. A nil embedding is stored as NULL and the product
// stays out of vector matching until one is set.
func (s *ProductStore) Create(ctx context.Context, p *types.Product) error {
	query := `
		INSERT INTO products (name, unit, quantity, reorder_point, embedding)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	row := s.db.QueryRow(ctx, query,
		p.Name,
		p.Unit,
		p.Quantity,
		p.ReorderPoint,
		p.Embedding,
	)

	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("inserting product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by its ID.
func (s *ProductStore) GetByID(ctx context.Context, id string) (*types.Product, error) {
	query := `
		SELECT id, name, unit, quantity, reorder_point, embedding, created_at, updated_at
		FROM products
		WHERE id = $1`

	p := &types.Product{}
	row := s.db.QueryRow(ctx, query, id)

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Unit,
		&p.Quantity,
		&p.ReorderPoint,
		&p.Embedding,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List retrieves the full catalog ordered by name.
func (s *ProductStore) List(ctx context.Context) ([]types.Product, error) {
	query := `
		SELECT id, name, unit, quantity, reorder_point, embedding, created_at, updated_at
		FROM products
		ORDER BY name`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []types.Product
	for rows.Next() {
		var p types.Product
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Unit,
			&p.Quantity,
			&p.ReorderPoint,
			&p.Embedding,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpdateEmbedding replaces a product's embedding vector.
func (s *ProductStore) UpdateEmbedding(ctx context.Context, id string, embedding pgvector.Vector) error {
	query := `
		UPDATE products
		SET embedding = $1, updated_at = NOW()
		WHERE id = $2`

	tag, err := s.db.Exec(ctx, query, embedding, id)
	if err != nil {
		return fmt.Errorf("updating embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// FindNearest scans the catalog by cosine distance to the query embedding.
// Rows come back ordered by distance ascending; equal distances are broken
// by product id so repeated scans of an unchanged catalog return the same
// ranking. Products with a NULL embedding are excluded.
func (s *ProductStore) FindNearest(ctx context.Context, embedding pgvector.Vector, limit int) ([]store.Neighbor, error) {
	query := `
		SELECT id, name, unit, embedding <=> $1 AS distance
		FROM products
		WHERE embedding IS NOT NULL
		ORDER BY distance, id
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("vector scan: %w", err)
	}
	defer rows.Close()

	var neighbors []store.Neighbor
	for rows.Next() {
		var n store.Neighbor
		if err := rows.Scan(&n.ProductID, &n.Name, &n.Unit, &n.Distance); err != nil {
			return nil, err
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}
