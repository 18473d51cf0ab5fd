package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocklens/stocklens-backend/config"
	apperrors "github.com/stocklens/stocklens-backend/errors"
	"github.com/stocklens/stocklens-backend/internal/ai"
	"github.com/stocklens/stocklens-backend/services"
	"github.com/stocklens/stocklens-backend/types"
)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

// memReceipts is an in-memory store.ReceiptStore recording every checkpoint
// write in order.
type memReceipts struct {
	mu          sync.Mutex
	receipts    map[string]*types.Receipt
	checkpoints []string
}

func newMemReceipts() *memReceipts {
	return &memReceipts{receipts: map[string]*types.Receipt{}}
}

func (m *memReceipts) Create(_ context.Context, r *types.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.NewString()
	cp := *r
	m.receipts[r.ID] = &cp
	return nil
}

func (m *memReceipts) GetByID(_ context.Context, id string) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (m *memReceipts) UpdateProgress(_ context.Context, id, step string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[id]
	if !ok || r.Status.Terminal() {
		return pgx.ErrNoRows
	}
	r.Status = types.ReceiptStatusProcessing
	r.CurrentStep = step
	r.Progress = progress
	m.checkpoints = append(m.checkpoints, fmt.Sprintf("%s:%d", step, progress))
	return nil
}

func (m *memReceipts) SetRawText(_ context.Context, id, rawText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	r.RawText = rawText
	return nil
}

func (m *memReceipts) SetCompleted(_ context.Context, id string, result *types.PipelineResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[id]
	if !ok || r.Status.Terminal() {
		return pgx.ErrNoRows
	}
	r.Status = types.ReceiptStatusCompleted
	r.Progress = types.ProgressValidation
	r.CurrentStep = ""
	r.Result = result
	return nil
}

func (m *memReceipts) SetFailed(_ context.Context, id, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[id]
	if !ok || r.Status.Terminal() {
		return pgx.ErrNoRows
	}
	r.Status = types.ReceiptStatusFailed
	r.ErrorText = errText
	return nil
}

type memTransactions struct {
	committed map[string][]types.ValidatedItem
	result    *types.CommitResult
	err       error
}

func (m *memTransactions) Commit(_ context.Context, receiptID string, items []types.ValidatedItem) (*types.CommitResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.committed == nil {
		m.committed = map[string][]types.ValidatedItem{}
	}
	m.committed[receiptID] = items
	if m.result != nil {
		return m.result, nil
	}
	return &types.CommitResult{TransactionID: uuid.NewString(), TotalItems: len(items)}, nil
}

func (m *memTransactions) GetByID(context.Context, string) (*types.Transaction, error) {
	return nil, pgx.ErrNoRows
}

func (m *memTransactions) List(context.Context, int, int) ([]types.Transaction, error) {
	return nil, nil
}

type memImages struct {
	data map[string][]byte
}

func (m *memImages) Save(context.Context, string, io.Reader) error { return nil }

func (m *memImages) Load(_ context.Context, key string) ([]byte, error) {
	data, ok := m.data[key]
	if !ok {
		return nil, errors.New("image not found")
	}
	return data, nil
}

func (m *memImages) Delete(context.Context, string) error { return nil }

type fakeExtractor struct {
	items []types.ExtractedItem
	raw   string
	err   error
}

func (f *fakeExtractor) ExtractItems(context.Context, []byte, string) ([]types.ExtractedItem, string, error) {
	return f.items, f.raw, f.err
}

type fakeMatcher struct {
	matches map[string]types.MatchedProduct
	err     error
}

func (f *fakeMatcher) Match(_ context.Context, name string) (types.MatchedProduct, error) {
	if f.err != nil {
		return types.MatchedProduct{}, f.err
	}
	return f.matches[name], nil
}

type fakeValidator struct {
	result ai.Quantification
	err    error
}

func (f *fakeValidator) ValidateItem(context.Context, types.MatchedProduct, string, string) (ai.Quantification, error) {
	return f.result, f.err
}

// ctxReceipts refuses writes once the caller's context is dead, the way a
// real pgx-backed store does.
type ctxReceipts struct {
	*memReceipts
}

func (c *ctxReceipts) UpdateProgress(ctx context.Context, id, step string, progress int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.memReceipts.UpdateProgress(ctx, id, step, progress)
}

func (c *ctxReceipts) SetCompleted(ctx context.Context, id string, result *types.PipelineResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.memReceipts.SetCompleted(ctx, id, result)
}

func (c *ctxReceipts) SetFailed(ctx context.Context, id, errText string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.memReceipts.SetFailed(ctx, id, errText)
}

// cancellingMatcher kills the job context mid-call, as a per-job timeout or
// pool shutdown would.
type cancellingMatcher struct {
	cancel context.CancelFunc
}

func (m *cancellingMatcher) Match(ctx context.Context, _ string) (types.MatchedProduct, error) {
	m.cancel()
	return types.MatchedProduct{}, ctx.Err()
}

func images(key string) *memImages {
	return &memImages{data: map[string][]byte{key: jpegBytes}}
}

func seedReceipt(t *testing.T, receipts *memReceipts, imageRef string) string {
	t.Helper()
	r := &types.Receipt{ImageRef: imageRef, Status: types.ReceiptStatusPending}
	require.NoError(t, receipts.Create(context.Background(), r))
	return r.ID
}

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()

	t.Run("full run with checkpoints", func(t *testing.T) {
		receipts := newMemReceipts()
		extractor := &fakeExtractor{
			items: []types.ExtractedItem{
				{Name: "โค้ก", QuantityText: "6 กระป๋อง", OriginalText: "โค้ก 325มล. x6"},
				{Name: "ของแปลก", QuantityText: "1", OriginalText: "ของแปลก 1"},
			},
			raw: `[{"name": "โค้ก"}]`,
		}
		m := &fakeMatcher{matches: map[string]types.MatchedProduct{
			"โค้ก": {ProductID: "p1", ProductName: "โค้ก 325 มล.", Unit: "กระป๋อง", Similarity: 0.92},
		}}

		svc := NewService(receipts, &memTransactions{}, images("r.jpg"), extractor, m, nil, nil)
		id := seedReceipt(t, receipts, "r.jpg")

		require.NoError(t, svc.run(ctx, id, "r.jpg"))

		r, err := receipts.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, types.ReceiptStatusCompleted, r.Status)
		assert.Equal(t, types.ProgressValidation, r.Progress)
		assert.Equal(t, `[{"name": "โค้ก"}]`, r.RawText)

		require.NotNil(t, r.Result)
		require.Len(t, r.Result.Items, 2)
		assert.Equal(t, 2, r.Result.TotalItems)

		matched := r.Result.Items[0]
		assert.Equal(t, "p1", matched.ProductID)
		assert.Equal(t, 6, matched.Quantity)
		assert.Equal(t, "กระป๋อง", matched.Unit)
		assert.False(t, matched.NeedsReview())

		unmatched := r.Result.Items[1]
		assert.Empty(t, unmatched.ProductID)
		assert.LessOrEqual(t, unmatched.Confidence, 0.75)
		assert.True(t, unmatched.NeedsReview())

		require.Len(t, r.Result.Unmatched, 1)
		assert.Equal(t, "ของแปลก", r.Result.Unmatched[0].Name)

		assert.Equal(t, []string{"extraction:0", "matching:33", "validation:66"}, receipts.checkpoints)
	})

	t.Run("zero extracted items completes", func(t *testing.T) {
		receipts := newMemReceipts()
		svc := NewService(receipts, &memTransactions{}, images("r.jpg"), &fakeExtractor{raw: "[]"}, &fakeMatcher{}, nil, nil)
		id := seedReceipt(t, receipts, "r.jpg")

		require.NoError(t, svc.run(ctx, id, "r.jpg"))

		r, _ := receipts.GetByID(ctx, id)
		assert.Equal(t, types.ReceiptStatusCompleted, r.Status)
		assert.Equal(t, types.ProgressValidation, r.Progress)
		require.NotNil(t, r.Result)
		assert.Zero(t, r.Result.TotalItems)
		assert.Empty(t, r.Result.Items)
	})

	t.Run("extraction failure is terminal and named", func(t *testing.T) {
		receipts := newMemReceipts()
		svc := NewService(receipts, &memTransactions{}, images("r.jpg"),
			&fakeExtractor{err: errors.New("model unreachable")}, &fakeMatcher{}, nil, nil)
		id := seedReceipt(t, receipts, "r.jpg")

		err := svc.run(ctx, id, "r.jpg")
		require.Error(t, err)

		r, _ := receipts.GetByID(ctx, id)
		assert.Equal(t, types.ReceiptStatusFailed, r.Status)
		assert.Contains(t, r.ErrorText, "extraction")
		// Terminal states reject further writes.
		assert.Error(t, receipts.UpdateProgress(ctx, id, types.StepMatching, 33))
	})

	t.Run("matching failure keeps extraction checkpoint", func(t *testing.T) {
		receipts := newMemReceipts()
		extractor := &fakeExtractor{items: []types.ExtractedItem{{Name: "โค้ก", OriginalText: "โค้ก"}}}
		svc := NewService(receipts, &memTransactions{}, images("r.jpg"), extractor,
			&fakeMatcher{err: errors.New("connection reset")}, nil, nil)
		id := seedReceipt(t, receipts, "r.jpg")

		require.Error(t, svc.run(ctx, id, "r.jpg"))

		r, _ := receipts.GetByID(ctx, id)
		assert.Equal(t, types.ReceiptStatusFailed, r.Status)
		assert.Contains(t, r.ErrorText, "matching")
		assert.Equal(t, types.ProgressExtraction, r.Progress)
	})

	t.Run("cancelled job context still fails the receipt", func(t *testing.T) {
		receipts := &ctxReceipts{newMemReceipts()}
		extractor := &fakeExtractor{items: []types.ExtractedItem{{Name: "โค้ก", OriginalText: "โค้ก"}}}

		jobCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		svc := NewService(receipts, &memTransactions{}, images("r.jpg"), extractor,
			&cancellingMatcher{cancel: cancel}, nil, nil)
		id := seedReceipt(t, receipts.memReceipts, "r.jpg")

		require.Error(t, svc.run(jobCtx, id, "r.jpg"))

		r, err := receipts.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, types.ReceiptStatusFailed, r.Status)
		assert.Contains(t, r.ErrorText, "matching")
		assert.Equal(t, types.ProgressExtraction, r.Progress)
	})

	t.Run("missing image fails extraction stage", func(t *testing.T) {
		receipts := newMemReceipts()
		svc := NewService(receipts, &memTransactions{}, &memImages{data: map[string][]byte{}},
			&fakeExtractor{}, &fakeMatcher{}, nil, nil)
		id := seedReceipt(t, receipts, "gone.jpg")

		require.Error(t, svc.run(ctx, id, "gone.jpg"))
		r, _ := receipts.GetByID(ctx, id)
		assert.Equal(t, types.ReceiptStatusFailed, r.Status)
	})

	t.Run("validator result overrides heuristics", func(t *testing.T) {
		receipts := newMemReceipts()
		extractor := &fakeExtractor{items: []types.ExtractedItem{
			{Name: "โค้ก", QuantityText: "แพ็ค", OriginalText: "โค้กแพ็ค"},
		}}
		m := &fakeMatcher{matches: map[string]types.MatchedProduct{
			"โค้ก": {ProductID: "p1", ProductName: "โค้ก", Unit: "กระป๋อง", Similarity: 0.95},
		}}
		v := &fakeValidator{result: ai.Quantification{Quantity: 6, Unit: "กระป๋อง", Confidence: 0.9}}

		svc := NewService(receipts, &memTransactions{}, images("r.jpg"), extractor, m, v, nil)
		id := seedReceipt(t, receipts, "r.jpg")

		require.NoError(t, svc.run(ctx, id, "r.jpg"))
		r, _ := receipts.GetByID(ctx, id)
		require.Len(t, r.Result.Items, 1)
		assert.Equal(t, 6, r.Result.Items[0].Quantity)
		assert.InDelta(t, 0.9, r.Result.Items[0].Confidence, 1e-9)
	})

	t.Run("validator failure degrades to heuristics", func(t *testing.T) {
		receipts := newMemReceipts()
		extractor := &fakeExtractor{items: []types.ExtractedItem{
			{Name: "น้ำดื่ม", QuantityText: "12 ขวด", OriginalText: "น้ำเปล่า 12ขวด"},
		}}
		m := &fakeMatcher{matches: map[string]types.MatchedProduct{
			"น้ำดื่ม": {ProductID: "p2", ProductName: "น้ำดื่ม", Unit: "ขวด", Similarity: 0.9},
		}}
		v := &fakeValidator{err: errors.New("quota exceeded")}

		svc := NewService(receipts, &memTransactions{}, images("r.jpg"), extractor, m, v, nil)
		id := seedReceipt(t, receipts, "r.jpg")

		require.NoError(t, svc.run(ctx, id, "r.jpg"))
		r, _ := receipts.GetByID(ctx, id)
		require.Len(t, r.Result.Items, 1)
		assert.Equal(t, 12, r.Result.Items[0].Quantity)
		assert.GreaterOrEqual(t, r.Result.Items[0].Quantity, 1)
	})

	t.Run("weak match caps confidence", func(t *testing.T) {
		receipts := newMemReceipts()
		extractor := &fakeExtractor{items: []types.ExtractedItem{
			{Name: "โค้ก", QuantityText: "6 กระป๋อง", OriginalText: "โค้ก x6"},
		}}
		m := &fakeMatcher{matches: map[string]types.MatchedProduct{
			"โค้ก": {ProductID: "p1", ProductName: "โค้ก", Unit: "กระป๋อง", Similarity: 0.55},
		}}

		svc := NewService(receipts, &memTransactions{}, images("r.jpg"), extractor, m, nil, nil)
		id := seedReceipt(t, receipts, "r.jpg")

		require.NoError(t, svc.run(ctx, id, "r.jpg"))
		r, _ := receipts.GetByID(ctx, id)
		assert.LessOrEqual(t, r.Result.Items[0].Confidence, 0.55)
		assert.True(t, r.Result.Items[0].NeedsReview())
	})
}

func TestPipelineSubmit(t *testing.T) {
	receipts := newMemReceipts()
	extractor := &fakeExtractor{items: []types.ExtractedItem{}}

	pool := services.NewWorkerPool(config.WorkerPoolConfig{
		MaxWorkers:        1,
		QueueSize:         4,
		JobTimeoutSeconds: 10,
	})
	pool.Start()
	defer func() { _ = pool.Shutdown(context.Background()) }()

	svc := NewService(receipts, &memTransactions{}, images("r.jpg"), extractor, &fakeMatcher{}, nil, pool)

	r, err := svc.Submit(context.Background(), "r.jpg")
	require.NoError(t, err)
	require.NotEmpty(t, r.ID)

	require.Eventually(t, func() bool {
		status, err := svc.GetStatus(context.Background(), r.ID)
		return err == nil && status.Status == types.ReceiptStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	status, err := svc.GetStatus(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, status.TaskID)
	assert.Equal(t, 100, status.Progress)
}

func TestPipelineGetStatus(t *testing.T) {
	receipts := newMemReceipts()
	svc := NewService(receipts, &memTransactions{}, images("r.jpg"), &fakeExtractor{}, &fakeMatcher{}, nil, nil)

	t.Run("unknown task", func(t *testing.T) {
		_, err := svc.GetStatus(context.Background(), uuid.NewString())
		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.NotFoundError, appErr.Type)
	})

	t.Run("in-flight task view", func(t *testing.T) {
		id := seedReceipt(t, receipts, "r.jpg")
		require.NoError(t, receipts.UpdateProgress(context.Background(), id, types.StepMatching, types.ProgressExtraction))

		status, err := svc.GetStatus(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, types.ReceiptStatusProcessing, status.Status)
		assert.Equal(t, types.ProgressExtraction, status.Progress)
		assert.Equal(t, types.StepMatching, status.CurrentStep)
		assert.Nil(t, status.Result)
	})
}

func TestPipelineConfirm(t *testing.T) {
	ctx := context.Background()
	items := []types.ValidatedItem{{ProductID: "p1", ProductName: "โค้ก", Quantity: 6, Unit: "กระป๋อง"}}

	t.Run("only completed receipts confirm", func(t *testing.T) {
		receipts := newMemReceipts()
		svc := NewService(receipts, &memTransactions{}, images("r.jpg"), &fakeExtractor{}, &fakeMatcher{}, nil, nil)
		id := seedReceipt(t, receipts, "r.jpg")

		_, err := svc.Confirm(ctx, id, items)
		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.ReceiptStateError, appErr.Type)
	})

	t.Run("completed receipt commits", func(t *testing.T) {
		receipts := newMemReceipts()
		txns := &memTransactions{}
		svc := NewService(receipts, txns, images("r.jpg"), &fakeExtractor{}, &fakeMatcher{}, nil, nil)
		id := seedReceipt(t, receipts, "r.jpg")
		require.NoError(t, receipts.SetCompleted(ctx, id, &types.PipelineResult{ReceiptID: id}))

		result, err := svc.Confirm(ctx, id, items)
		require.NoError(t, err)
		assert.Equal(t, 1, result.TotalItems)
		assert.Len(t, txns.committed[id], 1)
	})

	t.Run("unknown receipt", func(t *testing.T) {
		receipts := newMemReceipts()
		svc := NewService(receipts, &memTransactions{}, images("r.jpg"), &fakeExtractor{}, &fakeMatcher{}, nil, nil)

		_, err := svc.Confirm(ctx, uuid.NewString(), items)
		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.NotFoundError, appErr.Type)
	})
}
