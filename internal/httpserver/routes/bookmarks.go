package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/shelf/internal/httpserver/deps"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/mw"
)

func init() { Register(registerBookmarks) }

func registerBookmarks(r chi.Router, d deps.Deps) {
	r.Route("/api/bookmarks", func(r chi.Router) {
		r.Use(mw.EnforceHost(d.AllowedHosts, d.Logger))
		r.Use(mw.Authenticate(d.Verifier, d.CookieName, d.SignInURL, d.Logger))
		r.Use(mw.RateLimit(d.RateLimit))

		// The event stream is long-lived: no request timeout.
		r.Get("/events", handlers.BookmarkEvents(d))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(d.RequestTimeout))
			r.Get("/", handlers.ListBookmarks(d))
			r.Post("/", handlers.CreateBookmark(d))
			r.Post("/sync", handlers.SyncBookmarks(d))
			r.Delete("/pending/{token}", handlers.CancelPending(d))
			r.Delete("/{id}", handlers.DeleteBookmark(d))
		})
	})
}
