package notify

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lumra/lumra-backend/internal/utils"
)

// SetupRoutes mounts the delivery failure endpoints under /diagnostics.
func SetupRoutes(n *Notifier) http.Handler {
	r := chi.NewRouter()

	r.Get("/delivery-failures", func(w http.ResponseWriter, r *http.Request) {
		limit := utils.QueryLimit(r, 100, 1000)
		open, err := n.Failures().ListOpen(r.Context(), limit)
		if err != nil {
			http.Error(w, "Failed to list delivery failures", http.StatusInternalServerError)
			return
		}
		utils.WriteJSON(w, http.StatusOK, open)
	})

	r.Post("/delivery-failures/{id}/retry", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := n.Retry(r.Context(), id)
		switch {
		case errors.Is(err, ErrFailureNotFound):
			http.Error(w, "Delivery failure not found", http.StatusNotFound)
			return
		case err != nil:
			http.Error(w, "Redelivery failed: "+err.Error(), http.StatusBadGateway)
			return
		}

		f, err := n.Failures().Get(r.Context(), id)
		if err != nil {
			http.Error(w, "Failed to load delivery failure", http.StatusInternalServerError)
			return
		}
		utils.WriteJSON(w, http.StatusOK, f)
	})

	return r
}
