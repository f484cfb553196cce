package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// HeartbeatInterval keeps idle proxies from closing event streams.
var HeartbeatInterval = 25 * time.Second

// BookmarkEvents streams the caller's collection as server-sent events: one
// "snapshot" event immediately and one after every change. The stream ends
// when the client goes away or the session is closed.
func BookmarkEvents(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFor(w, r, d)
		if !ok {
			return
		}
		if err := s.EnsureLoaded(r.Context()); err != nil {
			writeError(w, d, err)
			return
		}

		changes, stop := s.Store().Watch()
		defer stop()

		rc := http.NewResponseController(w)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		send := func() error {
			snap := s.Store().Snapshot()
			data, err := json.Marshal(snap)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\nid: %d\ndata: %s\n\n", snap.Version, data); err != nil {
				return err
			}
			s.Touch()
			return rc.Flush()
		}

		if err := send(); err != nil {
			return
		}

		heartbeat := time.NewTicker(HeartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-s.Done():
				return
			case <-changes:
				if err := send(); err != nil {
					d.Logger.Debug("event stream write failed", logger.Error(err))
					return
				}
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				if err := rc.Flush(); err != nil {
					return
				}
				s.Touch()
			}
		}
	}
}
