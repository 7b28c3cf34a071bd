package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
)

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// WriteMessage writes an error envelope for failures detected by the
// handler itself, such as a malformed path parameter.
func WriteMessage(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, status int, code, message string) {
	body := errorBody{
		Error:     code,
		Message:   message,
		RequestID: middleware.GetReqID(ctx),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		body.TraceID = sc.TraceID().String()
	}
	WriteJSON(w, logger, status, body)
}

// WriteError maps a service error onto a status and error envelope. Errors
// outside the domain taxonomy are logged and hidden behind a generic 500.
func WriteError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)

	var named *domain.Error
	message := "internal server error"
	switch {
	case errors.As(err, &named) && status != http.StatusInternalServerError:
		message = named.Message
	case errors.Is(err, domain.ErrProvider):
		message = "payment provider unavailable"
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed", "error", err, "status", status)
	}

	WriteMessage(ctx, w, logger, status, domain.Code(err), message)
}

func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
