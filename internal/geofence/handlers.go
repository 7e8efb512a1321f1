package geofence

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lumra/lumra-backend/internal/geo"
	"github.com/lumra/lumra-backend/internal/utils"
)

type Handlers struct {
	svc *Service
}

func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

type fenceInput struct {
	ElderlyID    utils.FlexibleID `json:"elderly_id"`
	Label        string           `json:"label"`
	Latitude     *float64         `json:"latitude"`
	Longitude    *float64         `json:"longitude"`
	RadiusMeters *float64         `json:"radius_meters"`
	// Radius is the field name the mobile client posts to /geofence/set.
	Radius *float64 `json:"radius"`
}

func (in fenceInput) radius() *float64 {
	if in.RadiusMeters != nil {
		return in.RadiusMeters
	}
	return in.Radius
}

// CreateHandler serves POST /geofences and POST /geofence/set.
func (h *Handlers) CreateHandler(w http.ResponseWriter, r *http.Request) {
	guardianID, ok := utils.GetGuardianIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing guardian identity", http.StatusUnauthorized)
		return
	}

	var in fenceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	radius := in.radius()
	if in.ElderlyID == "" || in.Latitude == nil || in.Longitude == nil || radius == nil {
		http.Error(w, "elderly_id, latitude, longitude and radius are required", http.StatusBadRequest)
		return
	}

	elderlyID := in.ElderlyID.String()
	if err := h.svc.Authorize(r.Context(), guardianID, elderlyID); err != nil {
		writeError(w, err)
		return
	}

	fence, err := h.svc.Create(r.Context(), NewGeofence{
		ElderlyID:    elderlyID,
		OwnerID:      guardianID,
		Label:        in.Label,
		Center:       geo.Point{Lat: *in.Latitude, Lon: *in.Longitude},
		RadiusMeters: *radius,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, fence)
}

// UpdateHandler serves PUT /geofences/{id}.
func (h *Handlers) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	fence, ok := h.authorizedFence(w, r)
	if !ok {
		return
	}

	var in fenceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	radius := in.radius()
	if in.Latitude == nil || in.Longitude == nil || radius == nil {
		http.Error(w, "latitude, longitude and radius are required", http.StatusBadRequest)
		return
	}

	change := Change{
		Center:       geo.Point{Lat: *in.Latitude, Lon: *in.Longitude},
		RadiusMeters: *radius,
	}
	if in.Label != "" {
		change.Label = &in.Label
	}

	updated, err := h.svc.Update(r.Context(), fence.ID, change)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, updated)
}

// DeleteHandler serves DELETE /geofences/{id}.
func (h *Handlers) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	fence, ok := h.authorizedFence(w, r)
	if !ok {
		return
	}
	if err := h.svc.Deactivate(r.Context(), fence.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListHandler serves GET /elderly/{elderly_id}/geofences.
func (h *Handlers) ListHandler(w http.ResponseWriter, r *http.Request) {
	guardianID, ok := utils.GetGuardianIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing guardian identity", http.StatusUnauthorized)
		return
	}
	elderlyID := chi.URLParam(r, "elderly_id")
	if err := h.svc.Authorize(r.Context(), guardianID, elderlyID); err != nil {
		writeError(w, err)
		return
	}

	fences, err := h.svc.List(r.Context(), elderlyID)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, fences)
}

func (h *Handlers) authorizedFence(w http.ResponseWriter, r *http.Request) (Geofence, bool) {
	guardianID, ok := utils.GetGuardianIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing guardian identity", http.StatusUnauthorized)
		return Geofence{}, false
	}
	fence, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return Geofence{}, false
	}
	if err := h.svc.Authorize(r.Context(), guardianID, fence.ElderlyID); err != nil {
		writeError(w, err)
		return Geofence{}, false
	}
	return fence, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, geo.ErrInvalidGeometry):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Geofence not found", http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "Not linked to this elderly user", http.StatusForbidden)
	default:
		http.Error(w, "Geofence store error", http.StatusInternalServerError)
	}
}
