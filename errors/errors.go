package errors

import (
	"fmt"
	"net/http"

	"github.com/stocklens/stocklens-backend/logger"
)

type ErrorType string

const (
	ValidationError    ErrorType = "VALIDATION_ERROR"
	NotFoundError      ErrorType = "NOT_FOUND"
	DatabaseError      ErrorType = "DATABASE_ERROR"
	ServerError        ErrorType = "SERVER_ERROR"
	ConflictError      ErrorType = "CONFLICT"
	StageFailureError  ErrorType = "STAGE_FAILURE"
	ConfigurationError ErrorType = "CONFIGURATION_ERROR"
	ReceiptStateError  ErrorType = "INVALID_RECEIPT_STATE"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Raw        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped raw error for errors.Is/As chains.
func (e *AppError) Unwrap() error {
	return e.Raw
}

// GetHTTPStatus returns the HTTP status code associated with the error.
func (e *AppError) GetHTTPStatus() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return getHTTPStatus(e.Type)
}

// New creates a new AppError
func New(errType ErrorType, message string, detail string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     detail,
		HTTPStatus: getHTTPStatus(errType),
	}
}

// Wrap wraps a raw error with AppError context
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     err.Error(),
		HTTPStatus: getHTTPStatus(errType),
		Raw:        err,
	}
}

// Helper constructors for common errors

func NotFound(entity string, id interface{}) *AppError {
	return &AppError{
		Type:       NotFoundError,
		Message:    fmt.Sprintf("%s not found", entity),
		Detail:     fmt.Sprintf("ID: %v", id),
		HTTPStatus: http.StatusNotFound,
	}
}

func ValidationFailed(message string, details string) *AppError {
	return &AppError{
		Type:       ValidationError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusBadRequest,
	}
}

func NewDatabaseError(err error) *AppError {
	// Log original error but return sanitized message
	logger.GetLogger().Errorw("Database error", "error", err)
	return &AppError{
		Type:       DatabaseError,
		Message:    "Database operation failed",
		Detail:     "Please try again later",
		HTTPStatus: http.StatusInternalServerError,
		Raw:        err,
	}
}

func InternalServerError(message string) *AppError {
	return &AppError{
		Type:       ServerError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// StageFailure marks a pipeline stage as hard-failed. The stage name is part
// of the user-visible error so failed tasks can be diagnosed from status polls.
func StageFailure(stage string, err error) *AppError {
	return &AppError{
		Type:       StageFailureError,
		Message:    fmt.Sprintf("receipt processing failed during %s", stage),
		Detail:     err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Raw:        err,
	}
}

// DimensionMismatch signals that a freshly generated embedding does not match
// the dimensionality stored on the catalog. This is a deployment-wide
// configuration problem, not a per-task failure.
func DimensionMismatch(got, want int) *AppError {
	return &AppError{
		Type:       ConfigurationError,
		Message:    "embedding dimensionality mismatch between adapter and catalog",
		Detail:     fmt.Sprintf("adapter returned %d dimensions, catalog expects %d", got, want),
		HTTPStatus: http.StatusInternalServerError,
	}
}

// CommitConflict rejects a second confirmation of an already-committed
// receipt. The existing transaction id is carried in Code so callers can
// reference the original commit.
func CommitConflict(receiptID, existingTransactionID string) *AppError {
	return &AppError{
		Type:       ConflictError,
		Code:       existingTransactionID,
		Message:    "receipt has already been confirmed",
		Detail:     fmt.Sprintf("receipt %s is committed as transaction %s", receiptID, existingTransactionID),
		HTTPStatus: http.StatusConflict,
	}
}

func InvalidReceiptState(receiptID, status string) *AppError {
	return &AppError{
		Type:       ReceiptStateError,
		Message:    "receipt is not in a confirmable state",
		Detail:     fmt.Sprintf("receipt %s has status %q, expected completed", receiptID, status),
		HTTPStatus: http.StatusBadRequest,
	}
}

func getHTTPStatus(errType ErrorType) int {
	switch errType {
	case ValidationError:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case ConflictError:
		return http.StatusConflict
	case StageFailureError:
		return http.StatusBadGateway
	case ReceiptStateError:
		return http.StatusBadRequest
	case DatabaseError, ServerError, ConfigurationError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
