package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sagarc03/filepulse"
)

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// HandleError writes appropriate error response based on error type.
// Internal details never reach the client; they are logged instead.
func HandleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, filepulse.ErrTooLarge):
		slog.Debug("request rejected", "error", err)
		WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "File exceeds the maximum allowed size")
	case errors.Is(err, filepulse.ErrInvalidName):
		slog.Debug("request rejected", "error", err)
		WriteError(w, http.StatusBadRequest, "invalid_filename", "Invalid filename")
	case errors.Is(err, filepulse.ErrInvalidInput):
		slog.Debug("request rejected", "error", err)
		WriteError(w, http.StatusBadRequest, "invalid_input", "Invalid request")
	case errors.Is(err, filepulse.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "File not found or expired")
	case errors.Is(err, filepulse.ErrConflict):
		slog.Warn("request error", "error", err)
		WriteError(w, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable, try again")
	default:
		slog.Error("request error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}
