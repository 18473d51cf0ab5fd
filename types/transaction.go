package types

import "time"

// Transaction is the immutable audit record written when a user confirms a
// processed receipt. At most one transaction exists per receipt.
type Transaction struct {
	ID         string            `json:"id"`
	ReceiptID  string            `json:"receipt_id"`
	TotalItems int               `json:"total_items"`
	CreatedAt  time.Time         `json:"created_at"`
	Items      []TransactionItem `json:"items"`
}

// TransactionItem is one confirmed line of a transaction.
type TransactionItem struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	ProductID     string    `json:"product_id"`
	ProductName   string    `json:"product_name"`
	Quantity      int       `json:"quantity"`
	Unit          string    `json:"unit"`
	OriginalText  string    `json:"original_text"`
	CreatedAt     time.Time `json:"created_at"`
}

// CommitResult is returned from a successful confirmation.
type CommitResult struct {
	TransactionID string          `json:"transaction_id"`
	TotalItems    int             `json:"total_items"`
	LowStock      []LowStockAlert `json:"low_stock,omitempty"`
}
