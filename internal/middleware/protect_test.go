// AngelaMos | 2026
// protect_test.go

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/access-control/internal/access"
	"github.com/carterperez-dev/templates/access-control/internal/usage"
)

type staticTiers struct {
	tiers map[string]access.Tier
	err   error
}

func (s staticTiers) GetUserTier(_ context.Context, userID string) (access.Tier, bool, error) {
	if s.err != nil {
		return "", false, s.err
	}
	tier, ok := s.tiers[userID]
	return tier, ok, nil
}

var testTiers = staticTiers{tiers: map[string]access.Tier{
	"u-basic": access.TierBasic,
	"u-pro":   access.TierProfessional,
	"u-ent":   access.TierEnterprise,
}}

func newTestGuard(t *testing.T, tiers TierResolver) *Guard {
	t.Helper()
	store := usage.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })

	engine, err := access.NewEngine(
		access.DefaultMatrix(),
		store,
		access.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)

	return NewGuard(engine, tiers, slog.New(slog.DiscardHandler))
}

func newClockedGuard(t *testing.T, now time.Time, opts ...access.Option) *Guard {
	t.Helper()
	store := usage.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })

	opts = append(opts,
		access.WithLogger(slog.New(slog.DiscardHandler)),
		access.WithClock(func() time.Time { return now }),
	)
	engine, err := access.NewEngine(access.DefaultMatrix(), store, opts...)
	require.NoError(t, err)

	return NewGuard(engine, testTiers, slog.New(slog.DiscardHandler))
}

func serveAs(userID string, h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	if userID != "" {
		r = r.WithContext(WithIdentity(r.Context(), &Identity{UserID: userID, Role: "user"}))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decodeDenied(t *testing.T, rec *httptest.ResponseRecorder) DeniedResponse {
	t.Helper()
	var body DeniedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestProtectStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		rule     Rule
		status   int
		code     string
		upgrade  access.Tier
		hasLimit bool
	}{
		{
			name:   "anonymous",
			rule:   Rule{Feature: access.FeatureReports, Action: access.ActionView},
			status: http.StatusUnauthorized,
			code:   "UNAUTHORIZED",
		},
		{
			name:    "no subscription",
			userID:  "u-none",
			rule:    Rule{Feature: access.FeatureReports, Action: access.ActionView},
			status:  http.StatusPaymentRequired,
			code:    "SUBSCRIPTION_REQUIRED",
			upgrade: access.TierBasic,
		},
		{
			name:    "tier below requirement",
			userID:  "u-basic",
			rule:    Rule{RequiredTier: access.TierEnterprise},
			status:  http.StatusForbidden,
			code:    "TIER_REQUIRED",
			upgrade: access.TierEnterprise,
		},
		{
			name:    "feature not granted",
			userID:  "u-basic",
			rule:    Rule{Feature: access.FeatureAIAnalysis, Action: access.ActionView},
			status:  http.StatusForbidden,
			code:    "ACCESS_DENIED",
			upgrade: access.TierProfessional,
		},
		{
			name:    "resource not granted",
			userID:  "u-pro",
			rule:    Rule{Resource: access.ResourceIntegrations, Action: access.ActionConfigure},
			status:  http.StatusForbidden,
			code:    "ACCESS_DENIED",
			upgrade: access.TierEnterprise,
		},
	}

	guard := newTestGuard(t, testTiers)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := guard.Protect(tt.rule)(okHandler)
			rec := serveAs(tt.userID, h, httptest.NewRequest(http.MethodGet, "/x", nil))

			assert.Equal(t, tt.status, rec.Code)
			body := decodeDenied(t, rec)
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.upgrade, body.UpgradeRequired)
		})
	}
}

func TestProtectAllowSetsHeadersAndTier(t *testing.T) {
	guard := newTestGuard(t, testTiers)

	var seen access.Tier
	h := guard.Protect(Rule{
		Feature: access.FeatureTeam,
		Action:  access.ActionManage,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetTier(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := serveAs("u-pro", h, httptest.NewRequest(http.MethodPost, "/team", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, access.TierProfessional, seen)
	assert.Equal(t, "professional", rec.Header().Get(HeaderAccessTier))
	assert.Equal(t, "write", rec.Header().Get(HeaderAccessPermission))
	assert.Equal(t, "approval_required", rec.Header().Get(HeaderAccessConditions))
}

func TestProtectSubscriptionOnlyRule(t *testing.T) {
	guard := newTestGuard(t, testTiers)
	h := guard.Protect(Rule{})(okHandler)

	rec := serveAs("u-basic", h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "basic", rec.Header().Get(HeaderAccessTier))
	assert.Empty(t, rec.Header().Get(HeaderAccessConditions))
}

func TestProtectTracksUsageUntilLimit(t *testing.T) {
	guard := newTestGuard(t, testTiers)
	h := guard.Protect(Rule{
		Feature:    access.FeatureReports,
		Action:     access.ActionCreate,
		TrackUsage: true,
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	for i := range 5 {
		rec := serveAs("u-basic", h, httptest.NewRequest(http.MethodPost, "/reports", nil))
		require.Equal(t, http.StatusCreated, rec.Code, "request %d", i+1)
	}

	rec := serveAs("u-basic", h, httptest.NewRequest(http.MethodPost, "/reports", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	body := decodeDenied(t, rec)
	assert.Equal(t, "USAGE_LIMIT_EXCEEDED", body.Error.Code)
	assert.Equal(t, "Usage limit exceeded: 5/5 uses per month", body.Reason)
	assert.Equal(t, access.TierProfessional, body.UpgradeRequired)
	require.Len(t, body.Conditions, 1)
	assert.Equal(t, access.ConditionUsageLimit, body.Conditions[0].Type)
}

func TestProtectSkipsTrackingOnFailedResponse(t *testing.T) {
	guard := newTestGuard(t, testTiers)
	h := guard.Protect(Rule{
		Feature:    access.FeatureReports,
		Action:     access.ActionCreate,
		TrackUsage: true,
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	for range 7 {
		rec := serveAs("u-basic", h, httptest.NewRequest(http.MethodPost, "/reports", nil))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	}

	used, err := guard.Engine().GetCurrentUsage(
		context.Background(), "u-basic",
		access.FeatureReports, access.ActionCreate, access.WindowMonthly,
	)
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestProtectInternalErrorHidesDetail(t *testing.T) {
	guard := newTestGuard(t, staticTiers{err: errors.New("connection refused on 10.0.0.7")})
	h := guard.Protect(Rule{Feature: access.FeatureReports, Action: access.ActionView})(okHandler)

	rec := serveAs("u-basic", h, httptest.NewRequest(http.MethodGet, "/reports", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.7")

	body := decodeDenied(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.Empty(t, body.Reason)
}

func TestProtectCustomPredicate(t *testing.T) {
	guard := newTestGuard(t, testTiers)
	h := guard.Protect(Rule{
		Feature: access.FeatureReports,
		Action:  access.ActionView,
		Custom: func(_ context.Context, s Subject, _ access.Tier) (bool, string) {
			return s.UserAgent != "blocked-bot", "client not allowed"
		},
	})(okHandler)

	r := httptest.NewRequest(http.MethodGet, "/reports", nil)
	r.Header.Set("User-Agent", "blocked-bot")
	rec := serveAs("u-ent", h, r)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "client not allowed", decodeDenied(t, rec).Reason)

	rec = serveAs("u-ent", h, httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectMetadataConditions(t *testing.T) {
	guard := newTestGuard(t, testTiers)
	h := guard.Protect(Rule{
		Feature: access.FeatureAnalytics,
		Action:  access.ActionView,
		Metadata: func(r *http.Request) map[string]any {
			return map[string]any{"filterCount": len(r.URL.Query()["filter"])}
		},
	})(okHandler)

	rec := serveAs("u-pro", h, httptest.NewRequest(http.MethodGet, "/analytics?filter=a&filter=b", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	target := "/analytics?filter=a&filter=b&filter=c&filter=d&filter=e&filter=f"
	rec = serveAs("u-pro", h, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decodeDenied(t, rec).Reason, "Filter limit exceeded")
}

func TestProtectRedirect(t *testing.T) {
	guard := newTestGuard(t, testTiers)
	h := guard.Protect(Rule{
		Feature:  access.FeatureAIAnalysis,
		Action:   access.ActionCreate,
		Redirect: "/pricing?src=app",
	})(okHandler)

	rec := serveAs("u-basic", h, httptest.NewRequest(http.MethodGet, "/ai", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/pricing", loc.Path)

	q := loc.Query()
	assert.Equal(t, "app", q.Get("src"))
	assert.Equal(t, "ai_analysis", q.Get("feature"))
	assert.Equal(t, "create", q.Get("action"))
	assert.Equal(t, "professional", q.Get("upgrade"))
	assert.NotEmpty(t, q.Get("reason"))
}

func TestEvaluateWithoutHTTP(t *testing.T) {
	guard := newTestGuard(t, testTiers)

	d := guard.Evaluate(context.Background(), Subject{UserID: "u-ent"}, Rule{
		Resource: access.ResourceData,
		Action:   access.ActionDelete,
	})

	assert.True(t, d.Allowed)
	assert.Equal(t, access.TierEnterprise, d.Tier)
	assert.Equal(t, access.PermissionAdmin, d.Result.Permission)
	assert.True(t, d.Result.HasCondition(access.ConditionApprovalRequired))
}

func TestEvaluateStampsUsageContext(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	var seen access.UsageContext
	capture := func(_ any, uc *access.UsageContext) (access.ConditionOutcome, error) {
		if uc != nil {
			seen = *uc
		}
		return access.ConditionOutcome{Satisfied: true}, nil
	}

	guard := newClockedGuard(t, now, access.WithCondition(access.ConditionMaxFilters, capture))
	d := guard.Evaluate(context.Background(), Subject{UserID: "u-pro", Endpoint: "/analytics"}, Rule{
		Feature: access.FeatureAnalytics,
		Action:  access.ActionView,
	})

	require.True(t, d.Allowed)
	assert.Equal(t, now, seen.Timestamp)
	assert.Equal(t, "u-pro", seen.UserID)
	assert.Equal(t, access.FeatureAnalytics, seen.Feature)
	assert.Equal(t, access.ActionView, seen.Action)
	assert.Equal(t, "/analytics", seen.Endpoint)
}

func TestUsageLimitRetryAfterFollowsWindow(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	guard := newClockedGuard(t, now)

	uc := access.UsageContext{UserID: "u-basic", Feature: access.FeatureReports, Action: access.ActionCreate}
	for range 5 {
		require.NoError(t, guard.Engine().TrackUsage(context.Background(), uc))
	}

	rule := Rule{Feature: access.FeatureReports, Action: access.ActionCreate}
	d := guard.Evaluate(context.Background(), Subject{UserID: "u-basic"}, rule)
	require.Equal(t, DenialUsageLimit, d.Kind)

	monthEnd := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monthEnd.Sub(now), d.RetryAfter)

	rec := serveAs("u-basic", guard.Protect(rule)(okHandler), httptest.NewRequest(http.MethodPost, "/reports", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, strconv.FormatInt(int64(monthEnd.Sub(now).Seconds()), 10), rec.Header().Get("Retry-After"))
}

func TestRetryAfterPicksEarliestWindow(t *testing.T) {
	now := time.Date(2026, 6, 17, 6, 0, 0, 0, time.UTC)
	result := access.AccessResult{Conditions: []access.AccessCondition{
		{Type: access.ConditionUsageLimit, Blocking: true, Value: access.UsageLimitValue{Limit: 1, Current: 1, Window: access.WindowMonthly}},
		{Type: access.ConditionUsageLimit, Blocking: true, Value: access.UsageLimitValue{Limit: 1, Current: 1, Window: access.WindowDaily}},
	}}

	assert.Equal(t, 18*time.Hour, retryAfter(result, now))

	lifetime := access.AccessResult{Conditions: []access.AccessCondition{
		{Type: access.ConditionUsageLimit, Blocking: true, Value: access.UsageLimitValue{Limit: 1, Current: 1, Window: access.WindowLifetime}},
	}}
	assert.Zero(t, retryAfter(lifetime, now))
}
