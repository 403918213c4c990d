package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
		message  string
	}{
		{"not found", NotFound("promotion", "promo-1"), "NOT_FOUND", http.StatusNotFound, ErrNotFound, "promotion with id promo-1 not found"},
		{"already exists", AlreadyExists("promotion", "code", "LUNCH10"), "ALREADY_EXISTS", http.StatusConflict, ErrAlreadyExists, `promotion with code "LUNCH10" already exists`},
		{"invalid input", InvalidInput("name is required"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput, "name is required"},
		{"conflict without cause", Conflict("CONFLICT", "busy", nil), "CONFLICT", http.StatusConflict, ErrConflict, "busy"},
		{"unavailable", ServiceUnavailable("usage store unavailable"), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavail, "usage store unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.message, tt.err.Message)
			assert.ErrorIs(t, tt.err, tt.sentinel)
		})
	}
}

func TestConflict_KeepsCause(t *testing.T) {
	cause := errors.New("usage limit reached")
	err := Conflict("USAGE_LIMIT_REACHED", "promotion usage limit reached", cause)

	assert.Equal(t, "USAGE_LIMIT_REACHED", err.Code)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestAppError_ErrorString(t *testing.T) {
	withCause := &AppError{Code: "INTERNAL_ERROR", Message: "something broke", Err: errors.New("db connection lost")}
	assert.Equal(t, "INTERNAL_ERROR: something broke: db connection lost", withCause.Error())

	bare := &AppError{Code: "NOT_FOUND", Message: "promotion not found"}
	assert.Equal(t, "NOT_FOUND: promotion not found", bare.Error())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    string
		status  int
		message string
	}{
		{"bare not found hides detail", fmt.Errorf("promotion abc: %w", ErrNotFound), "NOT_FOUND", http.StatusNotFound, "resource not found"},
		{"bare already exists", ErrAlreadyExists, "ALREADY_EXISTS", http.StatusConflict, "resource already exists"},
		{"conflict shows detail", fmt.Errorf("version mismatch: %w", ErrConflict), "CONFLICT", http.StatusConflict, "version mismatch: conflict"},
		{"invalid input shows detail", fmt.Errorf("bad window: %w", ErrInvalidInput), "INVALID_INPUT", http.StatusBadRequest, "bad window: invalid input"},
		{"unavailable hides detail", fmt.Errorf("redis down: %w", ErrServiceUnavail), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "service temporarily unavailable"},
		{"unknown is opaque", errors.New("pq: relation missing"), "INTERNAL_ERROR", http.StatusInternalServerError, "an internal error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.message, got.Message)
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_AppErrorInChainWins(t *testing.T) {
	inner := NotFound("promotion", "p-1")
	wrapped := fmt.Errorf("redeem: %w", inner)

	got := Classify(wrapped)
	require.Same(t, inner, got)
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
}
