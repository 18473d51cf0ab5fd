// Package router assembles the gin engine: middleware chain, metrics, and
// the versioned API routes.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stocklens/stocklens-backend/config"
	"github.com/stocklens/stocklens-backend/handlers"
	"github.com/stocklens/stocklens-backend/middleware"
)

// Dependencies carries the constructed handlers into the router.
type Dependencies struct {
	Config      *config.Config
	Receipt     *handlers.ReceiptHandler
	Transaction *handlers.TransactionHandler
	Product     *handlers.ProductHandler
	Health      *handlers.HealthHandler
}

// New builds the HTTP engine.
func New(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.CORSMiddleware(&deps.Config.Server),
		middleware.ErrorHandler(),
	)

	r.GET("/health", deps.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		receipts := v1.Group("/receipts")
		{
			receipts.POST("", deps.Receipt.SubmitReceipt)
			receipts.GET("/:id/status", deps.Receipt.GetStatus)
			receipts.POST("/:id/confirm", deps.Receipt.ConfirmReceipt)
		}

		transactions := v1.Group("/transactions")
		{
			transactions.GET("", deps.Transaction.ListTransactions)
			transactions.GET("/:id", deps.Transaction.GetTransaction)
		}

		products := v1.Group("/products")
		{
			products.POST("", deps.Product.CreateProduct)
			products.GET("", deps.Product.ListProducts)
			products.GET("/:id", deps.Product.GetProduct)
		}
	}

	return r
}
