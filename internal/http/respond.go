package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tally/internal/auth"
	"tally/internal/core"
)

// failure is the uniform error payload. The message is meant to be shown
// to the end user as-is, so it carries no codes or internals.
type failure struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Response encoding failed", "error", err)
	}
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, failure{OK: false, Message: message})
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognized
// is treated as a storage fault and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrNoFields),
		errors.Is(err, auth.ErrEmptyName),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrEmptyPassword):
		writeFailure(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrNotFound):
		writeFailure(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrDuplicateEmail):
		writeFailure(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrUserNotFound),
		errors.Is(err, core.ErrInvalidCredentials):
		writeFailure(w, http.StatusUnauthorized, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Storage error", "error", err, "path", r.URL.Path)
		writeFailure(w, http.StatusInternalServerError, "storage unavailable: "+err.Error())
	}
}
