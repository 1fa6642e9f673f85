package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorekeeper/internal/auth"
	"github.com/dukerupert/chorekeeper/internal/workflow"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return false
	}
	return true
}

// writeError maps workflow errors onto HTTP statuses. Anything unrecognised
// is logged and reported as a 500 without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	var we *workflow.Error
	switch {
	case errors.As(err, &we) && we.Code == workflow.CodeUnauthorized:
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error": we.Reason,
			"code":  string(we.Code),
		})
	case errors.As(err, &we) && we.Code == workflow.CodeInvalidTransition:
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":      err.Error(),
			"code":       string(we.Code),
			"transition": string(we.Transition),
		})
	case errors.Is(err, workflow.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, workflow.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		logger.Error(msg, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
	}
}

func actorID(r *http.Request) string {
	return auth.UserID(r.Context())
}
