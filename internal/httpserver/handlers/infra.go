package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
)

type componentStatus struct {
	OK        bool   `json:"ok"`
	Mode      string `json:"mode,omitempty"`
	Impact    string `json:"impact,omitempty"`
	Active    *int   `json:"active,omitempty"`
	Connected *int   `json:"connected,omitempty"`
	Error     string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports the backend and the live sessions.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"gateway":  checkGateway(r, d),
			"sessions": checkSessions(d),
		}
		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	if gw, ok := components["gateway"]; ok && !gw.OK {
		return "critical" // no reads or writes possible
	}
	if s, ok := components["sessions"]; ok && !s.OK {
		return "degraded" // some sessions are not receiving live changes
	}
	return "operational"
}

func checkGateway(r *http.Request, d deps.Deps) componentStatus {
	if d.Gateway == nil {
		return componentStatus{OK: false, Mode: d.Backend, Error: "not initialized"}
	}
	if err := pingGateway(r.Context(), d.Gateway); err != nil {
		return componentStatus{OK: false, Mode: d.Backend, Impact: "bookmarks-unavailable", Error: err.Error()}
	}
	return componentStatus{OK: true, Mode: d.Backend}
}

func checkSessions(d deps.Deps) componentStatus {
	if d.Sessions == nil {
		return componentStatus{OK: false, Error: "not initialized"}
	}
	active, connected := d.Sessions.Stats()
	st := componentStatus{OK: connected == active, Active: &active, Connected: &connected}
	if !st.OK {
		st.Impact = "live-updates-delayed"
	}
	return st
}
