package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
)

const maxRequestBodySize = 64 << 10

// readJSON decodes an optional JSON request body with a size limit. An empty
// body yields the zero value.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if r.Body == nil || r.ContentLength == 0 {
		return v, true
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return v, true
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeFailure renders a provisioning failure. Validation and conflict
// messages are shown verbatim; infrastructure details never leave the server.
func writeFailure(w http.ResponseWriter, r *http.Request, f *tenant.Failure) {
	status := http.StatusServiceUnavailable
	message := tenant.MessageRetry
	switch f.Kind {
	case tenant.KindValidation:
		status = http.StatusBadRequest
		if f.Code == tenant.CodeRegistrationNotFound || f.Code == tenant.CodeTenantNotFound {
			status = http.StatusNotFound
		}
		message = f.Message
	case tenant.KindConflict:
		status = http.StatusConflict
		message = f.Message
	case tenant.KindCleanup:
		status = http.StatusInternalServerError
		message = tenant.MessageManualCleanup
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "code", f.Code, "kind", f.Kind, "error", f.Err)
	}
	writeJSON(w, status, errorResponse{Error: message, Code: f.Code})
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	var f *tenant.Failure
	switch {
	case errors.As(err, &f):
		writeFailure(w, r, f)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": "))
	case errors.Is(err, tenant.ErrDatabaseUnavailable):
		slog.ErrorContext(r.Context(), "request failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		writeInternalError(w, r, err)
	}
}

// writeInternalError logs the actual error server-side and returns a generic message to the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
