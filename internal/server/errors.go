package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/teemow/coachcontacts/internal/contacts"
	"github.com/teemow/coachcontacts/internal/credentials"
	"github.com/teemow/coachcontacts/internal/logging"
)

// Error kinds rendered in the "error" field besides the contacts kinds.
const (
	kindAuthRequired = "AuthRequired"
	kindInternal     = "Internal"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	RequiresAuth bool   `json:"requiresAuth,omitempty"`
}

// classifyError maps err onto an HTTP status and response body.
func classifyError(err error) (int, ErrorResponse) {
	if errors.Is(err, credentials.ErrAuthRequired) {
		return http.StatusUnauthorized, ErrorResponse{
			Error:        kindAuthRequired,
			Message:      "Google authorization required, sign in again",
			RequiresAuth: true,
		}
	}

	var ce *contacts.Error
	if errors.As(err, &ce) {
		status := http.StatusInternalServerError
		switch ce.Kind {
		case contacts.KindValidation:
			status = http.StatusBadRequest
		case contacts.KindNotFound:
			status = http.StatusNotFound
		case contacts.KindConflict:
			status = http.StatusConflict
		case contacts.KindRemoteUnavailable:
			status = http.StatusBadGateway
			if ce.Timeout() {
				status = http.StatusGatewayTimeout
			}
		}
		return status, ErrorResponse{Error: string(ce.Kind), Message: ce.Message}
	}

	return http.StatusInternalServerError, ErrorResponse{Error: kindInternal, Message: "internal server error"}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classifyError(err)

	attrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		logging.Err(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", attrs...)
	} else {
		h.logger.Debug("Request rejected", attrs...)
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
