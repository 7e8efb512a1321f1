package app

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/lumra/lumra-backend/internal/geofence"
	"github.com/lumra/lumra-backend/internal/ingest"
	"github.com/lumra/lumra-backend/internal/middleware"
	"github.com/lumra/lumra-backend/internal/notify"
	"github.com/lumra/lumra-backend/internal/profiles"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

// NewRouter mounts every HTTP surface of a.
func NewRouter(a *App, retryAfter int) http.Handler {
	fenceHandlers := geofence.NewHandlers(a.Fences)
	profileHandlers := profiles.NewHandlers(a.Profiles)
	ingestHandlers := ingest.NewHandlers(a.Engine, a.Fences, retryAfter)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORSMiddleware(a.Config.AllowedOrigins))

	r.Get("/", RootHandler)
	r.Handle("/metrics", a.Metrics.Handler())

	r.Mount("/guardian", profiles.SetupGuardianRoutes(profileHandlers, a.Profiles))
	r.Mount("/geofences", geofence.SetupRoutes(fenceHandlers, a.Profiles))
	r.With(middleware.GuardianMiddleware(a.Profiles)).Post("/geofence/set", fenceHandlers.CreateHandler)
	r.Mount("/locations", ingest.SetupRoutes(ingestHandlers, a.Profiles))
	r.Mount("/diagnostics", notify.SetupRoutes(a.Notifier))

	r.Route("/elderly", func(r chi.Router) {
		r.Post("/signup", profileHandlers.ElderlySignupHandler)

		r.Route("/{elderly_id}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.GuardianMiddleware(a.Profiles))
				r.Get("/geofences", fenceHandlers.ListHandler)
				ingest.GuardianRoutes(r, ingestHandlers)
			})
			r.Group(func(r chi.Router) {
				r.Use(middleware.ElderlyMiddleware(a.Profiles))
				profiles.ElderlyRoutes(r, profileHandlers)
			})
		})
	})

	return r
}
