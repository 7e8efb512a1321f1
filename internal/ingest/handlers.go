package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lumra/lumra-backend/internal/events"
	"github.com/lumra/lumra-backend/internal/geo"
	"github.com/lumra/lumra-backend/internal/geofence"
	"github.com/lumra/lumra-backend/internal/location"
	"github.com/lumra/lumra-backend/internal/utils"
)

// maxBatch caps the fixes accepted in one batch request.
const maxBatch = 500

// Authorizer checks that a guardian may read an elderly user's data.
type Authorizer interface {
	Authorize(ctx context.Context, guardianID, elderlyID string) error
}

type Handlers struct {
	engine     *Engine
	authorizer Authorizer
	retryAfter int
}

// NewHandlers builds the HTTP surface. retryAfter is the Retry-After value
// sent with 429 responses.
func NewHandlers(engine *Engine, authorizer Authorizer, retryAfter int) *Handlers {
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &Handlers{engine: engine, authorizer: authorizer, retryAfter: retryAfter}
}

type fixInput struct {
	ElderlyID      utils.FlexibleID `json:"elderly_id"`
	Lat            *float64         `json:"lat"`
	Lon            *float64         `json:"lon"`
	Latitude       *float64         `json:"latitude"`
	Longitude      *float64         `json:"longitude"`
	AccuracyMeters *float64         `json:"accuracy_meters"`
	Accuracy       *float64         `json:"accuracy"`
	ObservedAt     time.Time        `json:"observed_at"`
}

// toFix maps a request body onto a Fix for the calling device. Missing
// coordinates become NaN so validation rejects them.
func (in fixInput) toFix(elderlyID string) (location.Fix, error) {
	if in.ElderlyID != "" && in.ElderlyID.String() != elderlyID {
		return location.Fix{}, errIdentityMismatch
	}
	return location.Fix{
		ElderlyID:      elderlyID,
		Lat:            first(in.Lat, in.Latitude),
		Lon:            first(in.Lon, in.Longitude),
		AccuracyMeters: firstOr(0, in.AccuracyMeters, in.Accuracy),
		ObservedAt:     in.ObservedAt,
	}, nil
}

var errIdentityMismatch = errors.New("elderly_id does not match caller")

func first(vals ...*float64) float64 {
	return firstOr(math.NaN(), vals...)
}

func firstOr(fallback float64, vals ...*float64) float64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return fallback
}

// LocationHandler serves POST /locations.
func (h *Handlers) LocationHandler(w http.ResponseWriter, r *http.Request) {
	elderlyID, ok := utils.GetElderlyIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing elderly identity", http.StatusUnauthorized)
		return
	}

	var in fixInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	fix, err := in.toFix(elderlyID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	res, err := h.engine.Ingest(r.Context(), fix)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusAccepted, res)
}

// BatchHandler serves POST /locations/batch.
func (h *Handlers) BatchHandler(w http.ResponseWriter, r *http.Request) {
	elderlyID, ok := utils.GetElderlyIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing elderly identity", http.StatusUnauthorized)
		return
	}

	var body struct {
		Fixes []fixInput `json:"fixes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(body.Fixes) == 0 {
		http.Error(w, "At least one fix is required", http.StatusBadRequest)
		return
	}
	if len(body.Fixes) > maxBatch {
		http.Error(w, "Maximum "+strconv.Itoa(maxBatch)+" fixes per batch", http.StatusBadRequest)
		return
	}

	fixes := make([]location.Fix, 0, len(body.Fixes))
	for _, in := range body.Fixes {
		fix, err := in.toFix(elderlyID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		fixes = append(fixes, fix)
	}

	res, err := h.engine.IngestBatch(r.Context(), fixes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if res.Accepted == 0 && allRateLimited(res.Rejected) {
		w.Header().Set("Retry-After", strconv.Itoa(h.retryAfter))
		utils.WriteJSON(w, http.StatusTooManyRequests, res)
		return
	}
	utils.WriteJSON(w, http.StatusAccepted, res)
}

// allRateLimited reports whether every rejection is a rate-limit refusal.
func allRateLimited(rejected []Rejection) bool {
	if len(rejected) == 0 {
		return false
	}
	for _, r := range rejected {
		if r.Error != ErrRateLimited.Error() {
			return false
		}
	}
	return true
}

// LocationsHandler serves GET /elderly/{elderly_id}/locations.
func (h *Handlers) LocationsHandler(w http.ResponseWriter, r *http.Request) {
	elderlyID, ok := h.guardianOf(w, r)
	if !ok {
		return
	}
	fixes, err := h.engine.RecentLocations(r.Context(), elderlyID, utils.QueryLimit(r, location.DefaultHistoryLimit, 500))
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, fixes)
}

// EventsHandler serves GET /elderly/{elderly_id}/events.
func (h *Handlers) EventsHandler(w http.ResponseWriter, r *http.Request) {
	elderlyID, ok := h.guardianOf(w, r)
	if !ok {
		return
	}
	evs, err := h.engine.RecentEvents(r.Context(), elderlyID, utils.QueryLimit(r, events.DefaultListLimit, 500))
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, evs)
}

// MembershipHandler serves GET /elderly/{elderly_id}/membership.
func (h *Handlers) MembershipHandler(w http.ResponseWriter, r *http.Request) {
	elderlyID, ok := h.guardianOf(w, r)
	if !ok {
		return
	}
	states, err := h.engine.Membership(r.Context(), elderlyID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, states)
}

func (h *Handlers) guardianOf(w http.ResponseWriter, r *http.Request) (string, bool) {
	guardianID, ok := utils.GetGuardianIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing guardian identity", http.StatusUnauthorized)
		return "", false
	}
	elderlyID := chi.URLParam(r, "elderly_id")
	if h.authorizer != nil {
		err := h.authorizer.Authorize(r.Context(), guardianID, elderlyID)
		if errors.Is(err, geofence.ErrForbidden) {
			http.Error(w, "Not linked to this elderly user", http.StatusForbidden)
			return "", false
		}
		if err != nil {
			http.Error(w, "Couldn't check guardian link", http.StatusInternalServerError)
			return "", false
		}
	}
	return elderlyID, true
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, geo.ErrInvalidGeometry):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrRateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(h.retryAfter))
		http.Error(w, "Too many location reports", http.StatusTooManyRequests)
	default:
		http.Error(w, "Failed to process location", http.StatusInternalServerError)
	}
}
