package postgres

import (
	"context"
	"fmt"
	"sort"

	apperrors "github.com/stocklens/stocklens-backend/errors"
	"github.com/stocklens/stocklens-backend/internal/store"
	"github.com/stocklens/stocklens-backend/types"
)

// TransactionStore implements store.TransactionStore.
type TransactionStore struct {
	db store.DB
}

// NewTransactionStore creates a new TransactionStore instance.
func NewTransactionStore(db store.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Commit applies a confirmed receipt to inventory inside a single database
// transaction. Product rows are locked in ascending id order so concurrent
// commits touching overlapping products cannot deadlock. The unique
// receipt_id constraint enforces exactly-once: a repeat attempt surfaces the
// existing transaction id as a conflict.
func (s *TransactionStore) Commit(ctx context.Context, receiptID string, items []types.ValidatedItem) (*types.CommitResult, error) {
	committable := make([]types.ValidatedItem, 0, len(items))
	for _, item := range items {
		if item.ProductID != "" {
			committable = append(committable, item)
		}
	}
	if len(committable) == 0 {
		return nil, apperrors.ValidationFailed("no committable items", "every item is missing a product reference")
	}

	// Aggregate increments per product; a receipt can list the same product
	// on several lines.
	increments := make(map[string]int, len(committable))
	for _, item := range committable {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		increments[item.ProductID] += qty
	}
	productIDs := make([]string, 0, len(increments))
	for id := range increments {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning commit transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var transactionID string
	insertTxn := `
		INSERT INTO inventory_transactions (receipt_id, total_items)
		VALUES ($1, $2)
		RETURNING id`
	if err := tx.QueryRow(ctx, insertTxn, receiptID, len(committable)).Scan(&transactionID); err != nil {
		if store.IsUniqueViolation(err, "inventory_transactions_receipt_id_key") {
			return nil, s.conflictFor(ctx, receiptID)
		}
		return nil, fmt.Errorf("inserting transaction: %w", err)
	}

	lockQuery := `
		SELECT id, name, quantity, reorder_point
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`
	rows, err := tx.Query(ctx, lockQuery, productIDs)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}

	type lockedProduct struct {
		name         string
		quantity     int
		reorderPoint int
	}
	locked := make(map[string]lockedProduct, len(productIDs))
	for rows.Next() {
		var id string
		var p lockedProduct
		if err := rows.Scan(&id, &p.name, &p.quantity, &p.reorderPoint); err != nil {
			rows.Close()
			return nil, err
		}
		locked[id] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range productIDs {
		if _, ok := locked[id]; !ok {
			return nil, apperrors.NotFound("Product", id)
		}
	}

	insertItem := `
		INSERT INTO transaction_items (transaction_id, product_id, product_name, quantity, unit, original_text)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, item := range committable {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		if _, err := tx.Exec(ctx, insertItem,
			transactionID, item.ProductID, item.ProductName, qty, item.Unit, item.OriginalText,
		); err != nil {
			return nil, fmt.Errorf("inserting transaction item: %w", err)
		}
	}

	updateQty := `UPDATE products SET quantity = quantity + $1, updated_at = NOW() WHERE id = $2`
	var lowStock []types.LowStockAlert
	for _, id := range productIDs {
		if _, err := tx.Exec(ctx, updateQty, increments[id], id); err != nil {
			return nil, fmt.Errorf("incrementing product quantity: %w", err)
		}
		p := locked[id]
		newQty := p.quantity + increments[id]
		if newQty <= p.reorderPoint {
			lowStock = append(lowStock, types.LowStockAlert{
				ProductID:    id,
				ProductName:  p.name,
				Quantity:     newQty,
				ReorderPoint: p.reorderPoint,
			})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return &types.CommitResult{
		TransactionID: transactionID,
		TotalItems:    len(committable),
		LowStock:      lowStock,
	}, nil
}

// conflictFor looks up the transaction that already committed this receipt
// and wraps it in the conflict error the handler returns to the client.
func (s *TransactionStore) conflictFor(ctx context.Context, receiptID string) error {
	var existingID string
	query := `SELECT id FROM inventory_transactions WHERE receipt_id = $1`
	if err := s.db.QueryRow(ctx, query, receiptID).Scan(&existingID); err != nil {
		// The conflicting row vanished between the violation and this read;
		// still report the conflict, just without the id.
		return apperrors.CommitConflict(receiptID, "")
	}
	return apperrors.CommitConflict(receiptID, existingID)
}

// GetByID retrieves a transaction with its items.
func (s *TransactionStore) GetByID(ctx context.Context, id string) (*types.Transaction, error) {
	query := `
		SELECT id, receipt_id, total_items, created_at
		FROM inventory_transactions
		WHERE id = $1`

	t := &types.Transaction{}
	row := s.db.QueryRow(ctx, query, id)
	if err := row.Scan(&t.ID, &t.ReceiptID, &t.TotalItems, &t.CreatedAt); err != nil {
		return nil, err
	}

	itemsQuery := `
		SELECT id, transaction_id, product_id, product_name, quantity, unit, original_text, created_at
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, itemsQuery, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item types.TransactionItem
		err := rows.Scan(
			&item.ID,
			&item.TransactionID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.Unit,
			&item.OriginalText,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		t.Items = append(t.Items, item)
	}
	return t, rows.Err()
}

// List retrieves transactions newest first, without their items.
func (s *TransactionStore) List(ctx context.Context, limit, offset int) ([]types.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, receipt_id, total_items, created_at
		FROM inventory_transactions
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []types.Transaction
	for rows.Next() {
		var t types.Transaction
		if err := rows.Scan(&t.ID, &t.ReceiptID, &t.TotalItems, &t.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}
