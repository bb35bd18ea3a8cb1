// AngelaMos | 2026
// handler_test.go

package subscription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/access-control/internal/access"
	"github.com/carterperez-dev/templates/access-control/internal/middleware"
)

type tokenVerifier map[string]*middleware.Identity

func (v tokenVerifier) VerifyAccessToken(_ context.Context, token string) (*middleware.Identity, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return nil, assert.AnError
}

func newTestRouter(svc *Service) http.Handler {
	verifier := tokenVerifier{
		"user":  {UserID: "u-1", Role: "user"},
		"admin": {UserID: "admin-1", Role: "admin"},
	}
	authn := middleware.Authenticator(verifier)

	h := NewHandler(svc)
	r := chi.NewRouter()
	h.RegisterRoutes(r, authn)
	h.RegisterAdminRoutes(r, authn, middleware.RequireAdmin)
	return r
}

func do(h http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

type envelope struct {
	Success bool                 `json:"success"`
	Data    SubscriptionResponse `json:"data"`
}

func TestGetMine(t *testing.T) {
	repo := newFakeRepository(
		Subscription{UserID: "u-1", Tier: access.TierProfessional, Status: StatusActive},
	)
	router := newTestRouter(newTestService(repo))

	rec := do(router, http.MethodGet, "/subscription", "user", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, access.TierProfessional, body.Data.Tier)
	assert.True(t, body.Data.Active)

	rec = do(router, http.MethodGet, "/subscription", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetMineNotFound(t *testing.T) {
	router := newTestRouter(newTestService(newFakeRepository()))

	rec := do(router, http.MethodGet, "/subscription", "user", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminSetSubscription(t *testing.T) {
	repo := newFakeRepository()
	router := newTestRouter(newTestService(repo))

	rec := do(router, http.MethodPut, "/admin/subscriptions/u-7", "user",
		`{"tier":"enterprise","status":"active"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(router, http.MethodPut, "/admin/subscriptions/u-7", "admin",
		`{"tier":"gold","status":"active"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPut, "/admin/subscriptions/u-7", "admin", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPut, "/admin/subscriptions/u-7", "admin",
		`{"tier":"enterprise","status":"trialing","currentPeriodEnd":"2026-07-01T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u-7", body.Data.UserID)
	assert.Equal(t, StatusTrialing, body.Data.Status)
	assert.True(t, body.Data.Active)

	rec = do(router, http.MethodGet, "/admin/subscriptions/u-7/history", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"changedBy":"admin-1"`)
}

func TestAdminListSubscriptions(t *testing.T) {
	repo := newFakeRepository(
		Subscription{UserID: "u-1", Tier: access.TierBasic, Status: StatusActive},
		Subscription{UserID: "u-2", Tier: access.TierEnterprise, Status: StatusCanceled},
	)
	router := newTestRouter(newTestService(repo))

	rec := do(router, http.MethodGet, "/admin/subscriptions/?page=1&page_size=10", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":2`)
}
