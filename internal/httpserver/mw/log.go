package mw

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/shelf/internal/auth"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// statusWriter captures status code and bytes written.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	// Ensure status is set if handler wrote body without calling WriteHeader.
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying Flusher.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Log returns a middleware that logs one line per HTTP request.
// The owner is only known when Authenticate ran inside it.
func Log(loggerClient logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w}
			holder := &ownerHolder{}

			next.ServeHTTP(ww, r.WithContext(withOwnerHolder(r.Context(), holder)))

			loggerClient.Info("http_request",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", ww.status),
				logger.Int("bytes", ww.bytes),
				logger.Duration("duration", time.Since(start)),
				logger.String("remote_ip", r.RemoteAddr),
				logger.String("user_agent", r.UserAgent()),
				logger.String("request_id", middleware.GetReqID(r.Context())),
				logger.String("owner", holder.owner),
			)
		})
	}
}

type ownerHolderKey struct{}

// ownerHolder lets Authenticate report the owner back to Log.
type ownerHolder struct{ owner string }

func withOwnerHolder(ctx context.Context, h *ownerHolder) context.Context {
	return context.WithValue(ctx, ownerHolderKey{}, h)
}

func reportOwner(r *http.Request, id auth.Identity) {
	if h, ok := r.Context().Value(ownerHolderKey{}).(*ownerHolder); ok {
		h.owner = id.Owner
	}
}
