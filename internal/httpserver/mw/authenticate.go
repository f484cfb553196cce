package mw

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/shelf/internal/auth"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// TokenVerifier checks an access token.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Unauthorized is the body of a 401: clients must send the user to SignInURL.
type Unauthorized struct {
	Error     string `json:"error"`
	SignInURL string `json:"sign_in_url"`
}

// WriteUnauthorized writes a 401 pointing to the sign-in flow.
func WriteUnauthorized(w http.ResponseWriter, signInURL string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("WWW-Authenticate", `Bearer realm="shelf"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(Unauthorized{Error: "not_authenticated", SignInURL: signInURL})
}

// BearerToken extracts the access token from the Authorization header, or
// from the named cookie when the header is absent.
func BearerToken(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(strings.ToLower(h), "bearer ") {
			return strings.TrimSpace(h[len("bearer "):])
		}
		return ""
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil {
			return c.Value
		}
	}
	return ""
}

// Authenticate rejects requests without a valid access token and stores the
// verified identity in the request context.
func Authenticate(v TokenVerifier, cookieName, signInURL string, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.Verify(BearerToken(r, cookieName))
			if err != nil {
				log.Debug("request not authenticated",
					logger.String("path", r.URL.Path),
					logger.Error(err))
				WriteUnauthorized(w, signInURL)
				return
			}
			reportOwner(r, id)
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}
