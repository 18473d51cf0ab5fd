package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	apperrors "github.com/stocklens/stocklens-backend/errors"
	"github.com/stocklens/stocklens-backend/internal/ai"
	"github.com/stocklens/stocklens-backend/internal/normalize"
	"github.com/stocklens/stocklens-backend/internal/store"
	"github.com/stocklens/stocklens-backend/logger"
	"github.com/stocklens/stocklens-backend/types"
)

// ProductHandler serves the catalog endpoints the matching stage depends on.
type ProductHandler struct {
	products store.ProductStore
	embedder ai.Embedder
	log      *zap.SugaredLogger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(products store.ProductStore, embedder ai.Embedder) *ProductHandler {
	return &ProductHandler{
		products: products,
		embedder: embedder,
		log:      logger.GetLogger().Named("product-handler"),
	}
}

// CreateProductRequest is the payload for catalog product creation.
type CreateProductRequest struct {
	Name         string `json:"name" binding:"required"`
	Unit         string `json:"unit" binding:"required"`
	Quantity     int    `json:"quantity"`
	ReorderPoint int    `json:"reorder_point"`
}

// CreateProduct inserts a catalog product and embeds its normalized name so
// the matcher can find it. Embedding failures other than configuration
// errors degrade to an unembedded product instead of losing the row.
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.ValidationFailed("invalid product payload", err.Error()))
		return
	}
	if req.Quantity < 0 || req.ReorderPoint < 0 {
		_ = c.Error(apperrors.ValidationFailed("invalid product payload", "quantity and reorder_point must not be negative"))
		return
	}

	p := &types.Product{
		Name:         req.Name,
		Unit:         req.Unit,
		Quantity:     req.Quantity,
		ReorderPoint: req.ReorderPoint,
	}

	vec, err := h.embedder.Embed(c.Request.Context(), normalize.Fold(req.Name))
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Type == apperrors.ConfigurationError {
			_ = c.Error(err)
			return
		}
		h.log.Warnw("Product created without embedding", "name", req.Name, "error", err)
	} else {
		v := pgvector.NewVector(vec)
		p.Embedding = &v
	}

	if err := h.products.Create(c.Request.Context(), p); err != nil {
		_ = c.Error(apperrors.NewDatabaseError(err))
		return
	}
	c.JSON(http.StatusCreated, p)
}

// ListProducts returns the catalog ordered by name.
func (h *ProductHandler) ListProducts(c *gin.Context) {
	products, err := h.products.List(c.Request.Context())
	if err != nil {
		_ = c.Error(apperrors.NewDatabaseError(err))
		return
	}
	if products == nil {
		products = []types.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// GetProduct returns one catalog product.
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id := c.Param("id")
	p, err := h.products.GetByID(c.Request.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			_ = c.Error(apperrors.NotFound("Product", id))
			return
		}
		_ = c.Error(apperrors.NewDatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, p)
}
