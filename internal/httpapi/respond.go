package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nikolayk812/booksettle/internal/apperrors"
	"go.opentelemetry.io/otel/trace"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    apperrors.Code `json:"code"`
	Message string         `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", "method", "writeJSON", "error", err)
	}
}

// writeError renders the caller-safe part of err. Errors outside the taxonomy
// are logged and reported as internal, metadata of the others only goes to the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code == apperrors.CodeUnknown {
		attrs := []any{"method", r.Method, "path", r.URL.Path, "error", err}
		if sc := trace.SpanFromContext(r.Context()).SpanContext(); sc.IsValid() {
			attrs = append(attrs, "trace_id", sc.TraceID().String())
		}
		slog.ErrorContext(r.Context(), "request failed", attrs...)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
			Code:    apperrors.CodeUnknown,
			Message: "internal error",
		}})
		return
	}

	if len(appErr.Metadata) > 0 {
		attrs := []any{"method", r.Method, "path", r.URL.Path, "code", appErr.Code, "error", err}
		for key, value := range appErr.Metadata {
			attrs = append(attrs, key, value)
		}
		slog.InfoContext(r.Context(), "request rejected", attrs...)
	}

	writeJSON(w, appErr.Code.HTTPStatus(), errorBody{Error: errorDetail{Code: appErr.Code, Message: appErr.Message}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, "malformed request body", err)
	}

	return nil
}
