package ingest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lumra/lumra-backend/internal/middleware"
)

// SetupRoutes mounts the device-facing /locations endpoints.
func SetupRoutes(h *Handlers, fetcher middleware.ElderlyFetcher) http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.ElderlyMiddleware(fetcher))
		r.Post("/", h.LocationHandler)
		r.Post("/batch", h.BatchHandler)
	})

	return r
}

// GuardianRoutes registers the read endpoints on an /elderly/{elderly_id}
// router that already carries GuardianMiddleware.
func GuardianRoutes(r chi.Router, h *Handlers) {
	r.Get("/locations", h.LocationsHandler)
	r.Get("/events", h.EventsHandler)
	r.Get("/membership", h.MembershipHandler)
}
