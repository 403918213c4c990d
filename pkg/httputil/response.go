package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/BackOfficeGo/pkg/errors"
	"github.com/utafrali/BackOfficeGo/pkg/logger"
	"github.com/utafrali/BackOfficeGo/pkg/validator"
)

// Response is the JSON envelope every endpoint answers with.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, body ErrorResponse) {
	WriteJSON(w, status, Response{Error: &body})
}

// WriteError classifies err and writes its envelope. Only 500s are logged,
// with the request-scoped logger when RequestLogger is mounted and fallback
// otherwise.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	ctx := r.Context()
	appErr := apperrors.Classify(err)

	if appErr.Status == http.StatusInternalServerError {
		l := logger.FromContext(ctx)
		if l == slog.Default() {
			l = fallback
		}
		l.ErrorContext(ctx, "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	writeFailure(w, appErr.Status, ErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		RequestID: logger.CorrelationIDFromContext(ctx),
	})
}

// WriteValidationError answers 400. Validator failures carry per-field
// messages keyed by JSON path; anything else (a malformed body) is echoed as
// INVALID_INPUT.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if !errors.As(err, &valErr) {
		writeFailure(w, http.StatusBadRequest, ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()})
		return
	}
	writeFailure(w, http.StatusBadRequest, ErrorResponse{
		Code:    "VALIDATION_ERROR",
		Message: "request validation failed",
		Fields:  valErr.Fields(),
	})
}

// ParseUUID parses a path parameter. On failure it has already written a
// 400 INVALID_PARAMETER and the caller should return.
func ParseUUID(w http.ResponseWriter, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_PARAMETER",
			Message: "invalid UUID: " + param,
		})
		return uuid.Nil, false
	}
	return id, true
}
