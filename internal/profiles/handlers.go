package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lumra/lumra-backend/internal/utils"
)

type Handlers struct {
	svc *Service
}

func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// ElderlySignupHandler serves POST /elderly/signup.
func (h *Handlers) ElderlySignupHandler(w http.ResponseWriter, r *http.Request) {
	var in ElderlySignup
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	e, err := h.svc.SignupElderly(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "User " + e.Name + " signed up successfully.",
		"id":      e.ID,
	})
}

// GuardianSignupHandler serves POST /guardian/signup.
func (h *Handlers) GuardianSignupHandler(w http.ResponseWriter, r *http.Request) {
	var in GuardianSignup
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	g, err := h.svc.SignupGuardian(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "Guardian " + g.Name + " signed up successfully.",
		"id":      g.ID,
	})
}

// SendRequestHandler serves POST /guardian/request.
func (h *Handlers) SendRequestHandler(w http.ResponseWriter, r *http.Request) {
	guardianID, ok := utils.GetGuardianIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing guardian identity", http.StatusUnauthorized)
		return
	}
	var in struct {
		GuardianID   utils.FlexibleID `json:"guardian_id"`
		ElderlyPhone string           `json:"elderly_phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	// The mobile client repeats its own id in the body.
	if in.GuardianID != "" && in.GuardianID.String() != guardianID {
		http.Error(w, "guardian_id does not match caller", http.StatusForbidden)
		return
	}
	if in.ElderlyPhone == "" {
		http.Error(w, "elderly_phone is required", http.StatusBadRequest)
		return
	}

	req, err := h.svc.SendRequest(r.Context(), guardianID, in.ElderlyPhone)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Request sent.",
		"request": req,
	})
}

// ElderliesHandler serves GET /guardian/{guardian_id}/elderlies.
func (h *Handlers) ElderliesHandler(w http.ResponseWriter, r *http.Request) {
	guardianID, ok := utils.GetGuardianIDFromContext(r.Context())
	if !ok || guardianID != chi.URLParam(r, "guardian_id") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	out, err := h.svc.ListElderlies(r.Context(), guardianID)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

// GuardianOfHandler serves GET /elderly/{elderly_id}/guardian, the primary
// (first linked) guardian shown on the elderly dashboard.
func (h *Handlers) GuardianOfHandler(w http.ResponseWriter, r *http.Request) {
	elderlyID, ok := h.elderlySelf(w, r)
	if !ok {
		return
	}
	guardians, err := h.svc.Guardians(r.Context(), elderlyID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(guardians) == 0 {
		http.Error(w, "No guardian connected yet", http.StatusNotFound)
		return
	}
	utils.WriteJSON(w, http.StatusOK, guardians[0])
}

// GuardiansHandler serves GET /elderly/{elderly_id}/guardians.
func (h *Handlers) GuardiansHandler(w http.ResponseWriter, r *http.Request) {
	elderlyID, ok := h.elderlySelf(w, r)
	if !ok {
		return
	}
	guardians, err := h.svc.Guardians(r.Context(), elderlyID)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, guardians)
}

// RequestsHandler serves GET /elderly/{elderly_id}/requests.
func (h *Handlers) RequestsHandler(w http.ResponseWriter, r *http.Request) {
	elderlyID, ok := h.elderlySelf(w, r)
	if !ok {
		return
	}
	reqs, err := h.svc.PendingRequests(r.Context(), elderlyID)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, reqs)
}

// AcceptHandler serves POST /elderly/{elderly_id}/requests/{request_id}/accept.
func (h *Handlers) AcceptHandler(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, h.svc.AcceptRequest)
}

// RejectHandler serves POST /elderly/{elderly_id}/requests/{request_id}/reject.
func (h *Handlers) RejectHandler(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, h.svc.RejectRequest)
}

type answerFunc func(ctx context.Context, elderlyID, requestID string) (LinkRequest, error)

func (h *Handlers) answer(w http.ResponseWriter, r *http.Request, fn answerFunc) {
	elderlyID, ok := h.elderlySelf(w, r)
	if !ok {
		return
	}
	req, err := fn(r.Context(), elderlyID, chi.URLParam(r, "request_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, req)
}

// elderlySelf checks the path elderly id against the caller identity.
func (h *Handlers) elderlySelf(w http.ResponseWriter, r *http.Request) (string, bool) {
	elderlyID, ok := utils.GetElderlyIDFromContext(r.Context())
	if !ok || elderlyID != chi.URLParam(r, "elderly_id") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return "", false
	}
	return elderlyID, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidProfile), errors.Is(err, ErrPasswordMismatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrPhoneTaken), errors.Is(err, ErrEmailTaken), errors.Is(err, ErrAlreadyLinked),
		errors.Is(err, ErrRequestClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRequestNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, "Profile store error", http.StatusInternalServerError)
	}
}
