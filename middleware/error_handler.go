package middleware

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/stocklens/stocklens-backend/errors"
	"github.com/stocklens/stocklens-backend/logger"
)

// ErrorResponse is the JSON error body returned by every endpoint.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ErrorHandler converts errors attached to the gin context into the shared
// JSON error shape. Handlers call c.Error(err) and abort; this middleware
// owns status codes and logging.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		log := logger.GetLogger()

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			status := appErr.GetHTTPStatus()
			log.Warnw("Request failed",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"status", status,
				"type", appErr.Type,
				"error", appErr.Message,
				"detail", appErr.Detail,
				"requestId", c.GetString(RequestIDKey))

			resp := ErrorResponse{
				Type:    string(appErr.Type),
				Message: appErr.Message,
				Code:    strconv.Itoa(status),
			}
			// Conflict responses carry the existing transaction id in Code.
			if appErr.Type == apperrors.ConflictError && appErr.Code != "" {
				resp.Code = appErr.Code
			}
			if appErr.Detail != "" && (gin.IsDebugging() ||
				appErr.Type == apperrors.ValidationError ||
				appErr.Type == apperrors.NotFoundError ||
				appErr.Type == apperrors.ConflictError ||
				appErr.Type == apperrors.ReceiptStateError) {
				resp.Details = appErr.Detail
			}
			c.JSON(status, resp)
			return
		}

		if c.Errors.Last().Type == gin.ErrorTypeBind {
			log.Warnw("Request binding failed",
				"path", c.Request.URL.Path, "error", err)
			resp := ErrorResponse{
				Type:    string(apperrors.ValidationError),
				Message: "Failed to bind request",
				Code:    "400",
			}
			if gin.IsDebugging() {
				resp.Details = err.Error()
			}
			c.JSON(400, resp)
			return
		}

		log.Errorw("Unhandled request error",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"error", err)
		c.JSON(500, ErrorResponse{
			Type:    string(apperrors.ServerError),
			Message: "Internal server error",
			Code:    "500",
		})
	}
}
