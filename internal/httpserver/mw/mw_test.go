package mw

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/shelf/internal/auth"
	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{"remote addr", "10.0.0.1:1234", nil, false, "10.0.0.1"},
		{"ignores headers without trust", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "1.2.3.4"}, false, "10.0.0.1"},
		{"forwarded for first hop", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, true, "1.2.3.4"},
		{"cloudflare wins", "10.0.0.1:1234", map[string]string{"CF-Connecting-IP": "5.6.7.8", "X-Forwarded-For": "1.2.3.4"}, true, "5.6.7.8"},
		{"real ip", "10.0.0.1:1234", map[string]string{"X-Real-IP": "9.9.9.9"}, true, "9.9.9.9"},
		{"ipv6", "[::1]:80", nil, false, "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r, tt.trustProxy))
		})
	}
}

func TestIPMatcher(t *testing.T) {
	m := newIPMatcher([]string{"10.0.0.0/8", " 192.168.1.5 ", "", "not-an-ip"})
	require.False(t, m.empty())

	assert.True(t, m.allow("10.20.30.40"))
	assert.True(t, m.allow("192.168.1.5"))
	assert.True(t, m.allow("::ffff:10.1.1.1"))
	assert.False(t, m.allow("192.168.1.6"))
	assert.False(t, m.allow("garbage"))

	assert.True(t, newIPMatcher(nil).empty())
}

func TestAllowOnlyCIDRS(t *testing.T) {
	h := AllowOnlyCIDRS([]string{"127.0.0.0/8"}, false, logger.Nop())(okHandler)

	r := httptest.NewRequest(http.MethodGet, "/infra", nil)
	r.RemoteAddr = "127.0.0.1:5000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	r.RemoteAddr = "8.8.8.8:5000"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEnforceHost(t *testing.T) {
	h := EnforceHost([]string{"Shelf.example.com", "*.lan"}, logger.Nop())(okHandler)

	tests := []struct {
		host string
		want int
	}{
		{"shelf.example.com", http.StatusOK},
		{"SHELF.example.com:8080", http.StatusOK},
		{"box.lan", http.StatusOK},
		{"evil.com", http.StatusForbidden},
		{"lan", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Host = tt.host
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := RateLimit(RateLimitConfig{
		Burst:           2,
		RefillPerMinute: 60,
		Now:             func() time.Time { return now },
	})(okHandler)

	call := func(remote string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, call("1.1.1.1:1").Code)
	w := call("1.1.1.1:1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = call("1.1.1.1:1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Separate bucket per caller.
	assert.Equal(t, http.StatusOK, call("2.2.2.2:1").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, call("1.1.1.1:1").Code)
}

func TestRateLimitKeysByOwner(t *testing.T) {
	h := RateLimit(RateLimitConfig{Burst: 1, RefillPerMinute: 1})(okHandler)

	call := func(owner, remote string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remote
		r = r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{Owner: owner}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("u1", "1.1.1.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, call("u1", "2.2.2.2:1"))
	assert.Equal(t, http.StatusOK, call("u2", "1.1.1.1:1"))
}

type stubVerifier map[string]string

func (v stubVerifier) Verify(token string) (auth.Identity, error) {
	if owner, ok := v[token]; ok {
		return auth.Identity{Owner: owner}, nil
	}
	return auth.Identity{}, errors.Join(domain.ErrNotAuthenticated, errors.New("unknown token"))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{"header", "Bearer abc", "", "abc"},
		{"lowercase scheme", "bearer abc", "", "abc"},
		{"other scheme", "Basic xyz", "zzz", ""},
		{"cookie fallback", "", "zzz", "zzz"},
		{"nothing", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: "shelf_session", Value: tt.cookie})
			}
			assert.Equal(t, tt.want, BearerToken(r, "shelf_session"))
		})
	}
}

func TestAuthenticate(t *testing.T) {
	var seen auth.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	var owner string
	h := Log(logger.Nop())(Authenticate(stubVerifier{"good": "u1"}, "shelf_session", "https://sign.in", logger.Nop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hld, ok := r.Context().Value(ownerHolderKey{}).(*ownerHolder); ok {
				owner = hld.owner
			}
			next.ServeHTTP(w, r)
		})))

	r := httptest.NewRequest(http.MethodGet, "/api/bookmarks", nil)
	r.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", seen.Owner)
	assert.Equal(t, "u1", owner)

	r = httptest.NewRequest(http.MethodGet, "/api/bookmarks", nil)
	r.Header.Set("Authorization", "Bearer bad")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"sign_in_url":"https://sign.in"`)
	assert.Equal(t, `Bearer realm="shelf"`, w.Header().Get("WWW-Authenticate"))
}

func TestStatusWriterUnwraps(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}
	require.NoError(t, http.NewResponseController(sw).Flush())
	assert.True(t, rec.Flushed)
}
