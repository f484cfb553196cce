package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/mw"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

type sessionRequest struct {
	AccessToken string `json:"access_token"`
}

type sessionResponse struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateSession exchanges an identity provider access token for the session
// cookie. Signing in again replaces the owner's live session.
func CreateSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := mw.BearerToken(r, "")
		if token == "" {
			var req sessionRequest
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Reason: err.Error()})
				return
			}
			token = req.AccessToken
		}

		id, err := d.Verifier.Verify(token)
		if err != nil {
			d.Logger.Info("sign-in rejected", logger.Error(err))
			mw.WriteUnauthorized(w, d.SignInURL)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     d.CookieName,
			Value:    token,
			Path:     "/",
			Expires:  id.ExpiresAt,
			HttpOnly: true,
			Secure:   d.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})

		if _, err := d.Sessions.Renew(r.Context(), id.Owner); err != nil {
			// The next API call opens it again.
			d.Logger.Warn("failed to open session at sign-in",
				logger.String("owner", id.Owner),
				logger.Error(err))
		}

		writeJSON(w, http.StatusOK, sessionResponse{Owner: id.Owner, ExpiresAt: id.ExpiresAt})
	}
}

// subjectReader is implemented by verifiers that can name the owner of an
// expired but genuine token.
type subjectReader interface {
	Subject(token string) (string, error)
}

// signedOutOwner returns the owner whose session a sign-out should end.
func signedOutOwner(d deps.Deps, token string) (string, bool) {
	if id, err := d.Verifier.Verify(token); err == nil {
		return id.Owner, true
	}
	sr, ok := d.Verifier.(subjectReader)
	if !ok {
		return "", false
	}
	owner, err := sr.Subject(token)
	return owner, err == nil
}

// SignOut clears the cookie and closes the caller's session and subscription.
// An expired token still ends its owner's session.
func SignOut(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if owner, ok := signedOutOwner(d, mw.BearerToken(r, d.CookieName)); ok {
			d.Sessions.End(owner)
		}

		http.SetCookie(w, &http.Cookie{
			Name:     d.CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   d.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}
