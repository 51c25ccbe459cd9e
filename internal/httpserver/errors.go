package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mailcast/internal/domain"
	"mailcast/internal/providers"
)

const (
	ErrInvalidJSON      = "invalid json"
	ErrMissingID        = "missing id"
	ErrDependency       = "dependency error"
	ErrNotFound         = "not found"
	ErrConflict         = "conflict"
	ErrInvalidSignature = "invalid signature"
	ErrBadPayload       = "bad payload"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps service errors onto HTTP status codes. Anything not
// recognised is treated as a failing dependency.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *providers.Error
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrMissingFields):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeMessage(w, http.StatusNotFound, ErrNotFound)
	case errors.Is(err, domain.ErrInvalidTransition):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeMessage(w, http.StatusConflict, ErrConflict)
	case errors.As(err, &perr):
		slog.Warn("provider error", "err", err, "path", r.URL.Path)
		writeMessage(w, http.StatusBadGateway, err.Error())
	default:
		slog.Error("request failed", "err", err, "method", r.Method, "path", r.URL.Path)
		writeMessage(w, http.StatusBadGateway, ErrDependency)
	}
}
