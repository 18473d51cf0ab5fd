package types

import "time"

// ReceiptStatus tracks a receipt through the processing pipeline.
type ReceiptStatus string

const (
	ReceiptStatusPending    ReceiptStatus = "pending"
	ReceiptStatusProcessing ReceiptStatus = "processing"
	ReceiptStatusCompleted  ReceiptStatus = "completed"
	ReceiptStatusFailed     ReceiptStatus = "failed"
)

// Pipeline stages, in execution order. Each stage persists its checkpoint
// before the next stage starts.
const (
	StepExtraction = "extraction"
	StepMatching   = "matching"
	StepValidation = "validation"
)

// Progress checkpoints emitted after each stage completes.
const (
	ProgressExtraction = 33
	ProgressMatching   = 66
	ProgressValidation = 100
)

// Confidence thresholds used by the review UI. Items below AutoTrust are
// flagged for review; items below ReviewHighlight get the stricter highlight.
const (
	ConfidenceAutoTrust       = 0.8
	ConfidenceReviewHighlight = 0.7
)

// Receipt tracks an uploaded receipt image and its processing state.
// Status and progress are mutated only by the pipeline; completed and failed
// are terminal (a failed receipt is resubmitted as a new receipt, never
// mutated in place).
type Receipt struct {
	ID          string          `json:"id"`
	ImageRef    string          `json:"image_ref"`
	Status      ReceiptStatus   `json:"status"`
	Progress    int             `json:"progress"`
	CurrentStep string          `json:"current_step,omitempty"`
	RawText     string          `json:"raw_text,omitempty"`
	Result      *PipelineResult `json:"result,omitempty"`
	ErrorText   string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Terminal reports whether the receipt has reached a final state.
func (s ReceiptStatus) Terminal() bool {
	return s == ReceiptStatusCompleted || s == ReceiptStatusFailed
}

// ExtractedItem is a raw line item produced by the extraction stage.
type ExtractedItem struct {
	Name         string `json:"name"`
	QuantityText string `json:"quantity_text"`
	OriginalText string `json:"original_text"`
}

// MatchedProduct is the top-1 catalog match for an extracted item name.
// ProductID is empty when the catalog has no embedded products or the best
// similarity fell below the configured floor.
type MatchedProduct struct {
	ProductID   string  `json:"product_id,omitempty"`
	ProductName string  `json:"product_name,omitempty"`
	Unit        string  `json:"unit,omitempty"`
	Similarity  float64 `json:"similarity"`
}

// Matched reports whether a catalog product was identified.
func (m MatchedProduct) Matched() bool {
	return m.ProductID != ""
}

// ValidatedItem is the task result payload the user reviews and edits before
// confirming. Quantity is always >= 1 and Confidence within [0,1].
type ValidatedItem struct {
	ProductID    string  `json:"product_id,omitempty"`
	ProductName  string  `json:"product_name"`
	Quantity     int     `json:"quantity"`
	Unit         string  `json:"unit"`
	Confidence   float64 `json:"confidence"`
	OriginalText string  `json:"original_text"`
}

// NeedsReview reports whether the item should be flagged in the review UI.
func (v ValidatedItem) NeedsReview() bool {
	return v.ProductID == "" || v.Confidence < ConfidenceAutoTrust
}

// PipelineResult is the payload stored on a completed receipt.
type PipelineResult struct {
	ReceiptID  string          `json:"receipt_id"`
	Items      []ValidatedItem `json:"items"`
	TotalItems int             `json:"total_items"`
	// Unmatched carries extracted items with no catalog product so the user
	// sees them instead of silently losing receipt lines.
	Unmatched []ExtractedItem `json:"unmatched_items,omitempty"`
}

// TaskStatus is the pollable view of a pipeline task.
type TaskStatus struct {
	TaskID      string          `json:"task_id"`
	Status      ReceiptStatus   `json:"status"`
	Progress    int             `json:"progress"`
	CurrentStep string          `json:"current_step,omitempty"`
	Result      *PipelineResult `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}
