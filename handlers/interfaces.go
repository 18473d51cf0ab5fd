package handlers

import (
	"context"

	"github.com/stocklens/stocklens-backend/types"
)

// ReceiptProcessor is the pipeline capability the receipt handler consumes.
type ReceiptProcessor interface {
	Submit(ctx context.Context, imageRef string) (*types.Receipt, error)
	GetStatus(ctx context.Context, receiptID string) (*types.TaskStatus, error)
	Confirm(ctx context.Context, receiptID string, items []types.ValidatedItem) (*types.CommitResult, error)
}
