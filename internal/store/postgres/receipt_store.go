package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stocklens/stocklens-backend/internal/store"
	"github.com/stocklens/stocklens-backend/types"
)

// ReceiptStore implements store.ReceiptStore.
type ReceiptStore struct {
	db store.DB
}

// NewReceiptStore creates a new ReceiptStore instance.
func NewReceiptStore(db store.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

// Create inserts a receipt in its initial state.
func (s *ReceiptStore) Create(ctx context.Context, r *types.Receipt) error {
	query := `
		INSERT INTO receipts (image_ref, status, progress, current_step)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	row := s.db.QueryRow(ctx, query, r.ImageRef, r.Status, r.Progress, r.CurrentStep)
	if err := row.Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return fmt.Errorf("inserting receipt: %w", err)
	}
	return nil
}

// GetByID retrieves a receipt with its result payload.
func (s *ReceiptStore) GetByID(ctx context.Context, id string) (*types.Receipt, error) {
	query := `
		SELECT id, image_ref, status, progress, current_step, raw_text, result, error_text, created_at, updated_at
		FROM receipts
		WHERE id = $1`

	r := &types.Receipt{}
	var resultJSON []byte

	row := s.db.QueryRow(ctx, query, id)
	err := row.Scan(
		&r.ID,
		&r.ImageRef,
		&r.Status,
		&r.Progress,
		&r.CurrentStep,
		&r.RawText,
		&resultJSON,
		&r.ErrorText,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(resultJSON) > 0 {
		r.Result = &types.PipelineResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, fmt.Errorf("decoding receipt result: %w", err)
		}
	}
	return r, nil
}

// UpdateProgress records a stage checkpoint. The write is durable before the
// caller starts the next stage, so polled progress never goes backwards.
func (s *ReceiptStore) UpdateProgress(ctx context.Context, id, step string, progress int) error {
	query := `
		UPDATE receipts
		SET status = $1, current_step = $2, progress = $3, updated_at = NOW()
		WHERE id = $4 AND status NOT IN ($5, $6)`

	tag, err := s.db.Exec(ctx, query,
		types.ReceiptStatusProcessing, step, progress, id,
		types.ReceiptStatusCompleted, types.ReceiptStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("updating receipt progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetRawText stores the raw extraction output for audit.
func (s *ReceiptStore) SetRawText(ctx context.Context, id, rawText string) error {
	query := `UPDATE receipts SET raw_text = $1, updated_at = NOW() WHERE id = $2`

	tag, err := s.db.Exec(ctx, query, rawText, id)
	if err != nil {
		return fmt.Errorf("updating receipt raw text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetCompleted stores the final result and moves the receipt to its terminal
// completed state in one write.
func (s *ReceiptStore) SetCompleted(ctx context.Context, id string, result *types.PipelineResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding receipt result: %w", err)
	}

	query := `
		UPDATE receipts
		SET status = $1, progress = $2, current_step = '', result = $3, updated_at = NOW()
		WHERE id = $4 AND status NOT IN ($1, $5)`

	tag, err := s.db.Exec(ctx, query,
		types.ReceiptStatusCompleted, types.ProgressValidation, resultJSON, id,
		types.ReceiptStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("completing receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetFailed moves the receipt to its terminal failed state, preserving the
// progress of the last completed stage.
func (s *ReceiptStore) SetFailed(ctx context.Context, id, errText string) error {
	query := `
		UPDATE receipts
		SET status = $1, error_text = $2, updated_at = NOW()
		WHERE id = $3 AND status NOT IN ($1, $4)`

	tag, err := s.db.Exec(ctx, query,
		types.ReceiptStatusFailed, errText, id,
		types.ReceiptStatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("failing receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
