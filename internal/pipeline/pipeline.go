// Package pipeline orchestrates receipt processing: extraction, catalog
// matching and quantity validation, with a durable checkpoint after each
// stage. The receipt row is the single source of truth for task state; a
// poll after a crash sees exactly the last completed checkpoint.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	apperrors "github.com/stocklens/stocklens-backend/errors"
	"github.com/stocklens/stocklens-backend/internal/ai"
	"github.com/stocklens/stocklens-backend/internal/store"
	"github.com/stocklens/stocklens-backend/internal/storage"
	"github.com/stocklens/stocklens-backend/internal/unitparse"
	"github.com/stocklens/stocklens-backend/logger"
	"github.com/stocklens/stocklens-backend/services"
	"github.com/stocklens/stocklens-backend/types"
)

// Extractor turns a receipt image into line items plus the raw model output.
type Extractor interface {
	ExtractItems(ctx context.Context, image []byte, mime string) ([]types.ExtractedItem, string, error)
}

// Matcher resolves an item name to its best catalog product.
type Matcher interface {
	Match(ctx context.Context, name string) (types.MatchedProduct, error)
}

// Validator resolves quantity phrasing with the model. It is optional; when
// absent or failing, the heuristic parser decides alone.
type Validator interface {
	ValidateItem(ctx context.Context, matched types.MatchedProduct, originalText, quantityHint string) (ai.Quantification, error)
}

type pipelineMetrics struct {
	completed     prometheus.Counter
	stageFailures *prometheus.CounterVec
}

var (
	plMetricsInstance *pipelineMetrics
	plMetricsOnce     sync.Once
)

func newPipelineMetrics() *pipelineMetrics {
	plMetricsOnce.Do(func() {
		plMetricsInstance = &pipelineMetrics{
			completed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "receipt_pipeline_completed_total",
				Help: "Total number of receipts processed to completion",
			}),
			stageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "receipt_pipeline_stage_failures_total",
				Help: "Total number of pipeline failures by stage",
			}, []string{"stage"}),
		}
	})
	return plMetricsInstance
}

// Service runs receipt pipelines on the worker pool and answers status,
// confirmation and transaction queries against the stores.
type Service struct {
	receipts     store.ReceiptStore
	transactions store.TransactionStore
	images       storage.ImageStore
	extractor    Extractor
	matcher      Matcher
	validator    Validator
	pool         *services.WorkerPool
	metrics      *pipelineMetrics
	log          *zap.SugaredLogger
}

// NewService wires the pipeline. validator may be nil to run heuristics-only
// quantity resolution.
func NewService(
	receipts store.ReceiptStore,
	transactions store.TransactionStore,
	images storage.ImageStore,
	extractor Extractor,
	matcher Matcher,
	validator Validator,
	pool *services.WorkerPool,
) *Service {
	return &Service{
		receipts:     receipts,
		transactions: transactions,
		images:       images,
		extractor:    extractor,
		matcher:      matcher,
		validator:    validator,
		pool:         pool,
		metrics:      newPipelineMetrics(),
		log:          logger.GetLogger().Named("pipeline"),
	}
}

// Submit creates the receipt row for an already-stored image and enqueues its
// pipeline run. The returned receipt id doubles as the task id clients poll.
func (s *Service) Submit(ctx context.Context, imageRef string) (*types.Receipt, error) {
	r := &types.Receipt{
		ImageRef: imageRef,
		Status:   types.ReceiptStatusPending,
	}
	if err := s.receipts.Create(ctx, r); err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	accepted := s.pool.Submit(services.Job{
		Name: "receipt:" + r.ID,
		Execute: func(jobCtx context.Context) error {
			return s.run(jobCtx, r.ID, imageRef)
		},
	})
	if !accepted {
		if err := s.receipts.SetFailed(ctx, r.ID, "processing queue is full"); err != nil {
			s.log.Errorw("Failed to mark rejected receipt", "receiptId", r.ID, "error", err)
		}
		return nil, apperrors.InternalServerError("processing queue is full, try again later")
	}

	return r, nil
}

// run executes the three pipeline stages for one receipt.
func (s *Service) run(ctx context.Context, receiptID, imageRef string) error {
	log := s.log.With("receiptId", receiptID)

	if err := s.receipts.UpdateProgress(ctx, receiptID, types.StepExtraction, 0); err != nil {
		log.Errorw("Cannot start pipeline", "error", err)
		return err
	}

	items, err := s.extract(ctx, receiptID, imageRef)
	if err != nil {
		return s.fail(ctx, receiptID, types.StepExtraction, err)
	}

	// An empty receipt completes immediately: zero extracted items is a
	// legitimate outcome, not a failure.
	if len(items) == 0 {
		log.Infow("Receipt has no line items")
		return s.complete(ctx, receiptID, &types.PipelineResult{
			ReceiptID:  receiptID,
			Items:      []types.ValidatedItem{},
			TotalItems: 0,
		})
	}
	if err := s.receipts.UpdateProgress(ctx, receiptID, types.StepMatching, types.ProgressExtraction); err != nil {
		return s.fail(ctx, receiptID, types.StepExtraction, err)
	}

	matches := make([]types.MatchedProduct, len(items))
	for i, item := range items {
		match, err := s.matcher.Match(ctx, item.Name)
		if err != nil {
			return s.fail(ctx, receiptID, types.StepMatching, err)
		}
		matches[i] = match
	}
	if err := s.receipts.UpdateProgress(ctx, receiptID, types.StepValidation, types.ProgressMatching); err != nil {
		return s.fail(ctx, receiptID, types.StepMatching, err)
	}

	result := &types.PipelineResult{ReceiptID: receiptID}
	for i, item := range items {
		validated := s.validateItem(ctx, item, matches[i])
		result.Items = append(result.Items, validated)
		if !matches[i].Matched() {
			result.Unmatched = append(result.Unmatched, item)
		}
	}
	result.TotalItems = len(result.Items)

	return s.complete(ctx, receiptID, result)
}

func (s *Service) extract(ctx context.Context, receiptID, imageRef string) ([]types.ExtractedItem, error) {
	image, err := s.images.Load(ctx, imageRef)
	if err != nil {
		return nil, fmt.Errorf("loading receipt image: %w", err)
	}
	mime, err := storage.SniffImage(image)
	if err != nil {
		return nil, err
	}

	items, raw, err := s.extractor.ExtractItems(ctx, image, mime)
	if err != nil {
		return nil, err
	}

	if raw != "" {
		if err := s.receipts.SetRawText(ctx, receiptID, raw); err != nil {
			// Audit text is best effort; the pipeline result does not depend
			// on it.
			s.log.Warnw("Failed to store raw extraction text", "receiptId", receiptID, "error", err)
		}
	}
	return items, nil
}

// validateItem merges the heuristic parse with the model's answer when one
// is available. Model failures degrade to heuristics, never fail the stage.
func (s *Service) validateItem(ctx context.Context, item types.ExtractedItem, match types.MatchedProduct) types.ValidatedItem {
	resolution := unitparse.Parse(item.OriginalText, item.QuantityText, match.Unit)

	quantity := resolution.Quantity
	unit := resolution.Unit
	confidence := resolution.Confidence

	if s.validator != nil {
		q, err := s.validator.ValidateItem(ctx, match, item.OriginalText, item.QuantityText)
		if err != nil {
			s.log.Warnw("Quantity validation degraded to heuristics",
				"item", item.Name, "error", err)
		} else {
			quantity = q.Quantity
			if q.Unit != "" {
				unit = q.Unit
			}
			confidence = q.Confidence
		}
	}

	if quantity < 1 {
		quantity = 1
	}

	v := types.ValidatedItem{
		ProductName:  item.Name,
		Quantity:     quantity,
		Unit:         unit,
		Confidence:   confidence,
		OriginalText: item.OriginalText,
	}
	if match.Matched() {
		v.ProductID = match.ProductID
		v.ProductName = match.ProductName
		v.Unit = match.Unit
		if unit != "" {
			v.Unit = unit
		}
		// A shaky catalog match caps the item confidence no matter how
		// clean the quantity parse was.
		if match.Similarity < v.Confidence {
			v.Confidence = match.Similarity
		}
	} else if v.Confidence > unitparse.UnmatchedConfidenceCap {
		v.Confidence = unitparse.UnmatchedConfidenceCap
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return v
}

// terminalWriteTimeout bounds the detached terminal-state writes.
const terminalWriteTimeout = 10 * time.Second

// terminalCtx detaches a terminal-state write from the job context. The job
// context may already be dead (per-job timeout, shutdown) when a stage
// returns; the write still has to land or the receipt polls as processing
// forever and can never be resubmitted.
func terminalCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}

func (s *Service) complete(ctx context.Context, receiptID string, result *types.PipelineResult) error {
	ctx, cancel := terminalCtx(ctx)
	defer cancel()

	if err := s.receipts.SetCompleted(ctx, receiptID, result); err != nil {
		s.log.Errorw("Failed to store pipeline result", "receiptId", receiptID, "error", err)
		return err
	}
	s.metrics.completed.Inc()
	s.log.Infow("Receipt processed", "receiptId", receiptID, "totalItems", result.TotalItems,
		"unmatched", len(result.Unmatched))
	return nil
}

// fail records the stage failure on the receipt and returns the wrapped
// error. Progress keeps the last completed checkpoint.
func (s *Service) fail(ctx context.Context, receiptID, stage string, cause error) error {
	s.metrics.stageFailures.WithLabelValues(stage).Inc()
	stageErr := apperrors.StageFailure(stage, cause)

	ctx, cancel := terminalCtx(ctx)
	defer cancel()
	if err := s.receipts.SetFailed(ctx, receiptID, stageErr.Message); err != nil {
		s.log.Errorw("Failed to record stage failure", "receiptId", receiptID, "error", err)
	}
	s.log.Errorw("Pipeline stage failed", "receiptId", receiptID, "stage", stage, "error", cause)
	return stageErr
}

// GetStatus returns the pollable task view of a receipt.
func (s *Service) GetStatus(ctx context.Context, receiptID string) (*types.TaskStatus, error) {
	r, err := s.receipts.GetByID(ctx, receiptID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, apperrors.NotFound("Task", receiptID)
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	return &types.TaskStatus{
		TaskID:      r.ID,
		Status:      r.Status,
		Progress:    r.Progress,
		CurrentStep: r.CurrentStep,
		Result:      r.Result,
		Error:       r.ErrorText,
	}, nil
}

// Confirm commits the user-reviewed items of a completed receipt to
// inventory. Only completed receipts can be confirmed, and only once.
func (s *Service) Confirm(ctx context.Context, receiptID string, items []types.ValidatedItem) (*types.CommitResult, error) {
	r, err := s.receipts.GetByID(ctx, receiptID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, apperrors.NotFound("Receipt", receiptID)
		}
		return nil, apperrors.NewDatabaseError(err)
	}
	if r.Status != types.ReceiptStatusCompleted {
		return nil, apperrors.InvalidReceiptState(receiptID, string(r.Status))
	}

	result, err := s.transactions.Commit(ctx, receiptID, items)
	if err != nil {
		return nil, err
	}

	for _, alert := range result.LowStock {
		s.log.Warnw("Product at or below reorder point",
			"productId", alert.ProductID,
			"product", alert.ProductName,
			"quantity", alert.Quantity,
			"reorderPoint", alert.ReorderPoint)
	}
	return result, nil
}
