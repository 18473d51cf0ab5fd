package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/stocklens/stocklens-backend/logger"
)

// Pinger is the liveness contract the health check needs from the database
// pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports readiness of the service and its dependencies.
type HealthHandler struct {
	db      Pinger
	redis   *redis.Client
	version string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db Pinger, redisClient *redis.Client, version string) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, version: version}
}

// Health pings the database and Redis with a short deadline. Any component
// down yields 503 so load balancers stop routing here.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	components := gin.H{}
	healthy := true

	if err := h.db.Ping(ctx); err != nil {
		logger.GetLogger().Warnw("Health check: database down", "error", err)
		components["database"] = "down"
		healthy = false
	} else {
		components["database"] = "up"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			logger.GetLogger().Warnw("Health check: redis down", "error", err)
			components["redis"] = "down"
			healthy = false
		} else {
			components["redis"] = "up"
		}
	}

	status := http.StatusOK
	overall := "up"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "down"
	}
	c.JSON(status, gin.H{
		"status":     overall,
		"version":    h.version,
		"components": components,
	})
}
