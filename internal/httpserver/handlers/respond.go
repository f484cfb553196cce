package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/mw"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

type errorResponse struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
	Op     string `json:"op,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, d deps.Deps, err error) {
	var (
		verr *domain.ValidationError
		perr *domain.PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation", Field: verr.Field, Reason: verr.Reason})
	case errors.Is(err, domain.ErrNotAuthenticated):
		mw.WriteUnauthorized(w, d.SignInURL)
	case errors.Is(err, domain.ErrCanceled):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "canceled"})
	case errors.As(err, &perr):
		d.Logger.Warn("gateway call failed", logger.String("op", perr.Op), logger.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "persistence", Op: perr.Op})
	default:
		d.Logger.Error("request failed", logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal"})
	}
}
