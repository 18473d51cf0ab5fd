// Package handlers contains the gin HTTP handlers. Handlers bind and
// validate requests, delegate to services, and push errors to the error
// handling middleware via c.Error.
package handlers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stocklens/stocklens-backend/config"
	apperrors "github.com/stocklens/stocklens-backend/errors"
	"github.com/stocklens/stocklens-backend/internal/storage"
	"github.com/stocklens/stocklens-backend/logger"
	"github.com/stocklens/stocklens-backend/types"
)

// ReceiptHandler serves receipt submission, status polling and confirmation.
type ReceiptHandler struct {
	pipeline ReceiptProcessor
	images   storage.ImageStore
	maxBytes int64
	log      *zap.SugaredLogger
}

// NewReceiptHandler creates a new ReceiptHandler.
func NewReceiptHandler(p ReceiptProcessor, images storage.ImageStore, storageCfg config.StorageConfig) *ReceiptHandler {
	return &ReceiptHandler{
		pipeline: p,
		images:   images,
		maxBytes: storageCfg.MaxUploadBytes,
		log:      logger.GetLogger().Named("receipt-handler"),
	}
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// SubmitReceipt accepts a multipart receipt image, stores it, and enqueues
// the processing pipeline. Responds 202 with the task id to poll.
func (h *ReceiptHandler) SubmitReceipt(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		_ = c.Error(apperrors.ValidationFailed("missing receipt image", "multipart field \"image\" is required"))
		return
	}
	defer file.Close()

	if h.maxBytes > 0 && header.Size > h.maxBytes {
		_ = c.Error(apperrors.ValidationFailed("receipt image too large", "image exceeds the upload size limit"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		_ = c.Error(apperrors.InternalServerError("failed to read uploaded image"))
		return
	}
	if h.maxBytes > 0 && int64(len(data)) > h.maxBytes {
		_ = c.Error(apperrors.ValidationFailed("receipt image too large", "image exceeds the upload size limit"))
		return
	}

	mime, err := storage.SniffImage(data)
	if err != nil {
		_ = c.Error(err)
		return
	}

	key := "receipts/" + uuid.NewString() + extensions[mime]
	if err := h.images.Save(c.Request.Context(), key, bytes.NewReader(data)); err != nil {
		h.log.Errorw("Failed to store receipt image", "key", key, "error", err)
		_ = c.Error(apperrors.InternalServerError("failed to store receipt image"))
		return
	}

	receipt, err := h.pipeline.Submit(c.Request.Context(), key)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// Task id and receipt id coincide; both are returned so clients can rely
	// on the documented pair.
	c.JSON(http.StatusAccepted, gin.H{
		"receipt_id": receipt.ID,
		"task_id":    receipt.ID,
		"status":     receipt.Status,
	})
}

// GetStatus returns the pollable task view for a receipt.
func (h *ReceiptHandler) GetStatus(c *gin.Context) {
	status, err := h.pipeline.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ConfirmRequest is the reviewed item list the user commits.
type ConfirmRequest struct {
	Items []types.ValidatedItem `json:"items" binding:"required"`
}

// ConfirmReceipt commits the reviewed items of a completed receipt to
// inventory.
func (h *ReceiptHandler) ConfirmReceipt(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.ValidationFailed("invalid confirmation payload", err.Error()))
		return
	}
	if len(req.Items) == 0 {
		_ = c.Error(apperrors.ValidationFailed("no items to confirm", "items must not be empty"))
		return
	}

	result, err := h.pipeline.Confirm(c.Request.Context(), c.Param("id"), req.Items)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}
