package profiles

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/lumra/lumra-backend/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProfilesRouter(svc *Service) http.Handler {
	h := NewHandlers(svc)
	r := chi.NewRouter()
	r.Mount("/guardian", SetupGuardianRoutes(h, svc))
	r.Route("/elderly", func(r chi.Router) {
		r.Post("/signup", h.ElderlySignupHandler)
		r.Route("/{elderly_id}", func(r chi.Router) {
			r.Use(middleware.ElderlyMiddleware(svc))
			ElderlyRoutes(r, h)
		})
	})
	return r
}

type call struct {
	method, path, body string
	header, id         string
}

func (c call) do(r http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	if c.header != "" {
		req.Header.Set(c.header, c.id)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestProfileEndpoints_LinkFlow(t *testing.T) {
	svc := newTestService()
	r := newProfilesRouter(svc)

	rec := call{method: http.MethodPost, path: "/elderly/signup", body: `{
		"name":"Kamala","age":78,"gender":"female","phone":"9845012345",
		"address":"MG Road","password":"secret1","confirm":"secret1"}`}.do(r)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var signup struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signup))
	elderlyID := signup.ID
	assert.Contains(t, signup.Message, "Kamala")

	rec = call{method: http.MethodPost, path: "/guardian/signup", body: `{
		"name":"Arjun","email":"a@example.com","phone":"9845099999",
		"password":"hunter22","confirm":"hunter22","relation":"son"}`}.do(r)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signup))
	guardianID := signup.ID

	rec = call{method: http.MethodPost, path: "/guardian/request",
		body:   `{"guardian_id":"` + guardianID + `","elderly_phone":"98450 12345"}`,
		header: middleware.GuardianHeader, id: guardianID}.do(r)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sent struct {
		Request LinkRequest `json:"request"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))

	rec = call{method: http.MethodGet, path: "/elderly/" + elderlyID + "/guardian",
		header: middleware.ElderlyHeader, id: elderlyID}.do(r)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no guardian before accepting")

	rec = call{method: http.MethodPost, path: "/elderly/" + elderlyID + "/requests/" + sent.Request.ID + "/accept",
		header: middleware.ElderlyHeader, id: elderlyID}.do(r)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call{method: http.MethodGet, path: "/elderly/" + elderlyID + "/guardian",
		header: middleware.ElderlyHeader, id: elderlyID}.do(r)
	require.Equal(t, http.StatusOK, rec.Code)
	var g map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Equal(t, "Arjun", g["name"])
	assert.Equal(t, "son", g["relation"])
	assert.NotContains(t, g, "PasswordHash")

	rec = call{method: http.MethodGet, path: "/guardian/" + guardianID + "/elderlies",
		header: middleware.GuardianHeader, id: guardianID}.do(r)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []ElderlySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, elderlyID, rows[0].ElderlyID)
}

func TestProfileEndpoints_IdentityChecks(t *testing.T) {
	svc := newTestService()
	r := newProfilesRouter(svc)

	e, err := svc.SignupElderly(t.Context(), validElderly())
	require.NoError(t, err)
	g, err := svc.SignupGuardian(t.Context(), validGuardian())
	require.NoError(t, err)

	rec := call{method: http.MethodGet, path: "/guardian/other/elderlies",
		header: middleware.GuardianHeader, id: g.ID}.do(r)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call{method: http.MethodPost, path: "/guardian/request",
		body:   `{"guardian_id":"someone-else","elderly_phone":"9845012345"}`,
		header: middleware.GuardianHeader, id: g.ID}.do(r)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call{method: http.MethodGet, path: "/elderly/" + e.ID + "/requests"}.do(r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call{method: http.MethodPost, path: "/elderly/signup",
		body: `{"name":"X","age":70,"gender":"m","phone":"5550000","address":"a","password":"abcdef","confirm":"abcdeg"}`}.do(r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
