package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(ValidationError, "invalid input", "field required")
	assert.Equal(t, ValidationError, err.Type)
	assert.Equal(t, "invalid input", err.Message)
	assert.Equal(t, "field required", err.Detail)
	assert.Equal(t, 400, err.HTTPStatus)
}

func TestWrap(t *testing.T) {
	originalErr := fmt.Errorf("original error")
	wrappedErr := Wrap(originalErr, DatabaseError, "database operation failed")

	assert.Equal(t, DatabaseError, wrappedErr.Type)
	assert.Equal(t, "database operation failed", wrappedErr.Message)
	assert.Equal(t, originalErr.Error(), wrappedErr.Detail)
	assert.Equal(t, 500, wrappedErr.HTTPStatus)
	assert.Equal(t, originalErr, wrappedErr.Raw)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, DatabaseError, "no-op"))
}

func TestNotFound(t *testing.T) {
	err := NotFound("Receipt", "abc-123")
	assert.Equal(t, NotFoundError, err.Type)
	assert.Equal(t, "Receipt not found", err.Message)
	assert.Equal(t, "ID: abc-123", err.Detail)
	assert.Equal(t, 404, err.HTTPStatus)
}

func TestStageFailure(t *testing.T) {
	cause := fmt.Errorf("vision service unreachable")
	err := StageFailure("extraction", cause)

	assert.Equal(t, StageFailureError, err.Type)
	assert.Contains(t, err.Message, "extraction")
	assert.Equal(t, cause.Error(), err.Detail)
	assert.Equal(t, 502, err.HTTPStatus)
	assert.Equal(t, cause, err.Raw)
}

func TestDimensionMismatch(t *testing.T) {
	err := DimensionMismatch(768, 1536)
	assert.Equal(t, ConfigurationError, err.Type)
	assert.Contains(t, err.Detail, "768")
	assert.Contains(t, err.Detail, "1536")
	assert.Equal(t, 500, err.HTTPStatus)
}

func TestCommitConflict(t *testing.T) {
	err := CommitConflict("rcpt-1", "txn-9")
	assert.Equal(t, ConflictError, err.Type)
	assert.Equal(t, "txn-9", err.Code)
	assert.Contains(t, err.Detail, "rcpt-1")
	assert.Contains(t, err.Detail, "txn-9")
	assert.Equal(t, 409, err.HTTPStatus)
}

func TestInvalidReceiptState(t *testing.T) {
	err := InvalidReceiptState("rcpt-1", "processing")
	assert.Equal(t, ReceiptStateError, err.Type)
	assert.Contains(t, err.Detail, "processing")
	assert.Equal(t, 400, err.HTTPStatus)
}

func TestGetHTTPStatusFallback(t *testing.T) {
	err := &AppError{Type: ErrorType("UNKNOWN")}
	assert.Equal(t, 500, err.GetHTTPStatus())
}
