package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/stocklens/stocklens-backend/errors"
	"github.com/stocklens/stocklens-backend/internal/store"
	"github.com/stocklens/stocklens-backend/types"
)

// TransactionHandler serves the committed-transaction read API.
type TransactionHandler struct {
	transactions store.TransactionStore
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(transactions store.TransactionStore) *TransactionHandler {
	return &TransactionHandler{transactions: transactions}
}

// GetTransaction returns one transaction with its items.
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	id := c.Param("id")
	txn, err := h.transactions.GetByID(c.Request.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			_ = c.Error(apperrors.NotFound("Transaction", id))
			return
		}
		_ = c.Error(apperrors.NewDatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, txn)
}

// ListTransactions returns transactions newest first. Supports limit and
// offset query parameters.
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txns, err := h.transactions.List(c.Request.Context(), limit, offset)
	if err != nil {
		_ = c.Error(apperrors.NewDatabaseError(err))
		return
	}
	if txns == nil {
		txns = []types.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"limit":        limit,
		"offset":       offset,
	})
}
