package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/shelf/internal/auth"
	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/session"
)

const maxBodyBytes = 16 << 10

// sessionFor returns the caller's session, writing the error response itself
// when it cannot.
func sessionFor(w http.ResponseWriter, r *http.Request, d deps.Deps) (*session.Session, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, d, domain.ErrNotAuthenticated)
		return nil, false
	}
	s, err := d.Sessions.Acquire(r.Context(), id.Owner)
	if err != nil {
		d.Logger.Warn("failed to open session",
			logger.String("owner", id.Owner),
			logger.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "session_unavailable"})
		return nil, false
	}
	return s, true
}

// ListBookmarks returns the caller's collection, loading it on first use.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFor(w, r, d)
		if !ok {
			return
		}
		if err := s.EnsureLoaded(r.Context()); err != nil {
			writeError(w, d, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Store().Snapshot())
	}
}

type createRequest struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	ClientToken string `json:"client_token,omitempty"`
}

// CreateBookmark inserts a bookmark. client_token lets the caller cancel the
// create while it is in flight.
func CreateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFor(w, r, d)
		if !ok {
			return
		}

		var req createRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Reason: err.Error()})
			return
		}

		b, err := s.Store().CreateWithToken(r.Context(), req.ClientToken, req.Title, req.URL)
		if err != nil {
			writeError(w, d, err)
			return
		}
		writeJSON(w, http.StatusCreated, b)
	}
}

// DeleteBookmark removes a bookmark optimistically. On failure the
// collection has already been resynchronized when the error is returned.
func DeleteBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFor(w, r, d)
		if !ok {
			return
		}
		if err := s.Store().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, d, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CancelPending marks an in-flight create to be deleted as soon as it is acknowledged.
func CancelPending(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFor(w, r, d)
		if !ok {
			return
		}
		if !s.Store().CancelPending(chi.URLParam(r, "token")) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_pending"})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// SyncBookmarks reloads the collection from the gateway.
func SyncBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFor(w, r, d)
		if !ok {
			return
		}
		if err := s.Store().Load(r.Context()); err != nil {
			writeError(w, d, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Store().Snapshot())
	}
}
