package profiles

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lumra/lumra-backend/internal/middleware"
)

// SetupGuardianRoutes mounts the /guardian endpoints. Elderly endpoints
// share the /elderly prefix with other packages and are wired by the root
// router.
func SetupGuardianRoutes(h *Handlers, fetcher middleware.GuardianFetcher) http.Handler {
	r := chi.NewRouter()

	r.Post("/signup", h.GuardianSignupHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.GuardianMiddleware(fetcher))
		r.Post("/request", h.SendRequestHandler)
		r.Get("/{guardian_id}/elderlies", h.ElderliesHandler)
	})

	return r
}

// ElderlyRoutes registers the elderly-side profile endpoints on r, which
// must already carry ElderlyMiddleware.
func ElderlyRoutes(r chi.Router, h *Handlers) {
	r.Get("/guardian", h.GuardianOfHandler)
	r.Get("/guardians", h.GuardiansHandler)
	r.Get("/requests", h.RequestsHandler)
	r.Post("/requests/{request_id}/accept", h.AcceptHandler)
	r.Post("/requests/{request_id}/reject", h.RejectHandler)
}
