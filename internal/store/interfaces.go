// Package store defines the persistence contracts consumed by the pipeline
// and handlers. Implementations live in subpackages; internal/store/postgres
// is the production one.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/stocklens/stocklens-backend/types"
)

// DB is the subset of pgxpool.Pool the stores use. pgxmock satisfies it too,
// which is what the store tests run against.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Neighbor is one row of a vector similarity scan: a catalog product and its
// cosine distance from the query embedding (0 identical, 2 opposite).
type Neighbor struct {
	ProductID string
	Name      string
	Unit      string
	Distance  float64
}

// ProductStore accesses the product catalog.
type ProductStore interface {
	Create(ctx context.Context, p *types.Product) error
	GetByID(ctx context.Context, id string) (*types.Product, error)
	List(ctx context.Context) ([]types.Product, error)
	UpdateEmbedding(ctx context.Context, id string, embedding pgvector.Vector) error
	// FindNearest returns up to limit embedded products ordered by cosine
	// distance ascending, ties broken by product id. Products without an
	// embedding are never returned.
	FindNearest(ctx context.Context, embedding pgvector.Vector, limit int) ([]Neighbor, error)
}

// ReceiptStore persists receipt processing state. Progress writes are
// checkpoints: each one is durable before the pipeline moves to the next
// stage, so a poll observes monotonically non-decreasing progress.
type ReceiptStore interface {
	Create(ctx context.Context, r *types.Receipt) error
	GetByID(ctx context.Context, id string) (*types.Receipt, error)
	UpdateProgress(ctx context.Context, id, step string, progress int) error
	SetRawText(ctx context.Context, id, rawText string) error
	SetCompleted(ctx context.Context, id string, result *types.PipelineResult) error
	SetFailed(ctx context.Context, id, errText string) error
}

// TransactionStore commits confirmed receipts to inventory and reads back
// committed transactions.
type TransactionStore interface {
	// Commit applies the confirmed items atomically: one inventory transaction
	// row, its items, and the product quantity increments all land or none do.
	// A second commit for the same receipt fails with a conflict carrying the
	// existing transaction id.
	Commit(ctx context.Context, receiptID string, items []types.ValidatedItem) (*types.CommitResult, error)
	GetByID(ctx context.Context, id string) (*types.Transaction, error)
	List(ctx context.Context, limit, offset int) ([]types.Transaction, error)
}
