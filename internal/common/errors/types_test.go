package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	t.Run("type and message", func(t *testing.T) {
		err := NotFoundError("record")
		assert.Equal(t, "not_found: record not found", err.Error())
	})

	t.Run("includes code and cause", func(t *testing.T) {
		cause := fmt.Errorf("boom")
		err := InternalError("query failed", cause).WithCode("DB001")
		assert.Contains(t, err.Error(), "code=DB001")
		assert.Contains(t, err.Error(), "cause=boom")
	})

	t.Run("includes context", func(t *testing.T) {
		err := ValidationError("bad name").WithContext("field", "name")
		assert.Contains(t, err.Error(), "field=name")
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := ConnectionError("connect failed", cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestIsType(t *testing.T) {
	t.Run("matching type", func(t *testing.T) {
		assert.True(t, IsType(NotFoundError("record"), ErrTypeNotFound))
	})

	t.Run("wrapped AppError", func(t *testing.T) {
		wrapped := fmt.Errorf("handler: %w", ConflictError("duplicate name", nil))
		assert.True(t, IsType(wrapped, ErrTypeConflict))
	})

	t.Run("plain error", func(t *testing.T) {
		assert.False(t, IsType(fmt.Errorf("plain"), ErrTypeInternal))
	})

	t.Run("nil error", func(t *testing.T) {
		assert.False(t, IsType(nil, ErrTypeInternal))
	})
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrTypeUnavailable, GetType(UnavailableError("redis", nil)))
	assert.Equal(t, ErrTypeRateLimit, GetType(RateLimitError("/api/records")))
	assert.Equal(t, ErrTypeInternal, GetType(fmt.Errorf("plain")))
	assert.Equal(t, ErrorType(""), GetType(nil))
}
