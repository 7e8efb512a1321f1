package geofence

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lumra/lumra-backend/internal/middleware"
)

// SetupRoutes mounts the fence management endpoints. The per-elderly list
// lives under /elderly and is wired by the root router.
func SetupRoutes(h *Handlers, fetcher middleware.GuardianFetcher) http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.GuardianMiddleware(fetcher))
		r.Post("/", h.CreateHandler)
		r.Put("/{id}", h.UpdateHandler)
		r.Delete("/{id}", h.DeleteHandler)
	})

	return r
}
