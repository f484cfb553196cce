package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
)

const pingTimeout = 2 * time.Second

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// pingGateway pings the gateway when it supports it.
func pingGateway(ctx context.Context, g domain.Gateway) error {
	p, ok := g.(domain.Pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p.Ping(ctx)
}

// Readyz is 200 when the persistence gateway answers, 503 otherwise.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pingGateway(r.Context(), d.Gateway); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Ready: false, Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, readyzResponse{Ready: true})
	}
}
