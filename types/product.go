package types

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Product is a catalog product. The pipeline reads embeddings during matching
// and increments Quantity during commit; everything else is owned by the
// catalog collaborator.
type Product struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	Quantity     int       `json:"quantity"`
	ReorderPoint int       `json:"reorder_point"`
	// Embedding is nil when generation failed and the caller opted to keep
	// the product anyway; such products are invisible to vector matching.
	Embedding *pgvector.Vector `json:"-"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// LowStockAlert reports a product whose quantity fell to or below its reorder
// point after a commit.
type LowStockAlert struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	Quantity     int    `json:"quantity"`
	ReorderPoint int    `json:"reorder_point"`
}
