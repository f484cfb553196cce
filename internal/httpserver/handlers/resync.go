package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

type resyncResponse struct {
	Triggered bool `json:"triggered"`
	Sessions  int  `json:"sessions"`
}

// Resync triggers a full reload of every open session.
func Resync(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := resyncResponse{Sessions: d.Sessions.Len()}

		select {
		case d.ResyncTrigger <- struct{}{}:
			resp.Triggered = true
			d.Logger.Info("manual resync triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusAccepted, resp)
		default:
			d.Logger.Warn("resync already in progress",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusTooManyRequests, resp)
		}
	}
}
