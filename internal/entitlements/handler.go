// AngelaMos | 2026
// handler.go

package entitlements

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/templates/access-control/internal/access"
	"github.com/carterperez-dev/templates/access-control/internal/core"
	"github.com/carterperez-dev/templates/access-control/internal/middleware"
)

// Handler exposes the engine to the UI. Every route expects the caller's
// tier in the request context, placed there by the guard.
type Handler struct {
	engine     *access.Engine
	validator  *validator.Validate
	upgradeURL string
}

func NewHandler(engine *access.Engine, upgradeURL string) *Handler {
	return &Handler{
		engine:     engine,
		validator:  validator.New(validator.WithRequiredStructEnabled()),
		upgradeURL: upgradeURL,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	middlewares ...func(http.Handler) http.Handler,
) {
	r.Route("/access", func(r chi.Router) {
		r.Use(middlewares...)

		r.Get("/features", h.Features)
		r.Post("/check", h.Check)
		r.Get("/gate", h.Gate)
		r.Post("/usage", h.TrackUsage)
		r.Get("/usage", h.Usage)
		r.Get("/limits/{limitType}", h.Limit)
		r.Get("/upgrade", h.Upgrade)
		r.Get("/matrix", h.Matrix)
	})
}

func callerTier(w http.ResponseWriter, r *http.Request) (access.Tier, bool) {
	tier, ok := middleware.GetTier(r.Context())
	if !ok {
		core.Forbidden(w, "an active subscription is required")
	}
	return tier, ok
}

func (h *Handler) usageContext(r *http.Request, feature access.Feature, action access.Action) *access.UsageContext {
	s := middleware.SubjectFromRequest(r)
	return &access.UsageContext{
		UserID:    s.UserID,
		Feature:   feature,
		Action:    action,
		Timestamp: h.engine.Now(),
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
		Endpoint:  s.Endpoint,
	}
}

func (h *Handler) Features(w http.ResponseWriter, r *http.Request) {
	tier, ok := callerTier(w, r)
	if !ok {
		return
	}

	core.OK(w, FeaturesResponse{
		Tier:     tier,
		Features: h.engine.GetAvailableFeatures(tier),
	})
}

// Check evaluates a feature or resource action for the caller without
// consuming usage.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	tier, ok := callerTier(w, r)
	if !ok {
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	action, err := access.ParseAction(req.Action)
	if err != nil {
		core.BadRequest(w, err.Error())
		return
	}

	if req.Resource != "" {
		resource, err := access.ParseResourceType(req.Resource)
		if err != nil {
			core.BadRequest(w, err.Error())
			return
		}
		uc := h.usageContext(r, "", action)
		uc.Metadata = req.Metadata
		core.OK(w, h.engine.CheckResourcePermission(r.Context(), tier, resource, action, uc))
		return
	}

	feature, err := access.ParseFeature(req.Feature)
	if err != nil {
		core.BadRequest(w, err.Error())
		return
	}

	uc := h.usageContext(r, feature, action)
	uc.Metadata = req.Metadata
	core.OK(w, h.engine.CheckPermission(r.Context(), tier, feature, action, uc))
}

// Gate answers the UI's conditional-render question for one feature action.
func (h *Handler) Gate(w http.ResponseWriter, r *http.Request) {
	tier, ok := callerTier(w, r)
	if !ok {
		return
	}

	feature, action, ok := featureActionQuery(w, r)
	if !ok {
		return
	}

	result := h.engine.CheckPermission(r.Context(), tier, feature, action, h.usageContext(r, feature, action))
	resp := GateResponse{Render: result.Allowed, Result: result}

	if !result.Allowed && result.Err == nil {
		resp.Upgrade = h.upgradePrompt(tier, feature, action, result)
	}

	core.OK(w, resp)
}

// upgradePrompt prefers a full recommendation. Denials where the tier holds
// the action but hit a quota or condition fall back to the result's
// upgrade tier.
func (h *Handler) upgradePrompt(
	tier access.Tier,
	feature access.Feature,
	action access.Action,
	result access.AccessResult,
) *UpgradePrompt {
	if rec := h.engine.GetUpgradeRecommendations(tier, feature, action); rec != nil {
		return &UpgradePrompt{
			Tier:     rec.Tier,
			Benefits: rec.Benefits,
			URL:      h.upgradeLink(feature, action, rec.Tier),
		}
	}
	if result.UpgradeRequired == "" {
		return nil
	}
	return &UpgradePrompt{
		Tier:     result.UpgradeRequired,
		Benefits: h.engine.UpgradeBenefits(tier, result.UpgradeRequired),
		URL:      h.upgradeLink(feature, action, result.UpgradeRequired),
	}
}

func (h *Handler) upgradeLink(feature access.Feature, action access.Action, tier access.Tier) string {
	u, err := url.Parse(h.upgradeURL)
	if err != nil {
		return h.upgradeURL
	}
	q := u.Query()
	q.Set("feature", string(feature))
	q.Set("action", string(action))
	q.Set("upgrade", string(tier))
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *Handler) TrackUsage(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerTier(w, r); !ok {
		return
	}

	var req TrackUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	feature, err := access.ParseFeature(req.Feature)
	if err != nil {
		core.BadRequest(w, err.Error())
		return
	}

	action, err := access.ParseAction(req.Action)
	if err != nil {
		core.BadRequest(w, err.Error())
		return
	}

	uc := h.usageContext(r, feature, action)
	uc.Metadata = req.Metadata

	if err := h.engine.TrackUsage(r.Context(), *uc); err != nil {
		if errors.Is(err, access.ErrInvalidUsageContext) {
			core.BadRequest(w, err.Error())
			return
		}
		core.JSONError(w, core.UnavailableError("usage tracking is unavailable"))
		return
	}

	core.NoContent(w)
}

func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	tier, ok := callerTier(w, r)
	if !ok {
		return
	}

	meters, err := h.engine.UsageSnapshot(r.Context(), tier, middleware.GetUserID(r.Context()))
	if err != nil {
		core.JSONError(w, core.UnavailableError("usage data is unavailable"))
		return
	}
	if meters == nil {
		meters = []access.UsageMeter{}
	}

	core.OK(w, UsageResponse{Tier: tier, Meters: meters})
}

func (h *Handler) Limit(w http.ResponseWriter, r *http.Request) {
	tier, ok := callerTier(w, r)
	if !ok {
		return
	}

	limitType, err := access.ParseLimitType(chi.URLParam(r, "limitType"))
	if err != nil {
		core.BadRequest(w, err.Error())
		return
	}

	var current int64
	if raw := r.URL.Query().Get("current"); raw != "" {
		current, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || current < 0 {
			core.BadRequest(w, "current must be a non-negative integer")
			return
		}
	}

	limits, _ := h.engine.Checker().GetTierLimits(tier)
	limit, _ := limits.Get(limitType)

	core.OK(w, LimitResponse{
		LimitType: limitType,
		Limit:     limit,
		Current:   current,
		Unlimited: access.IsUnlimited(limit),
		Result:    h.engine.CheckTierLimits(tier, limitType, current),
	})
}

// Upgrade returns 204 when the caller already has access or no tier grants it.
func (h *Handler) Upgrade(w http.ResponseWriter, r *http.Request) {
	tier, ok := callerTier(w, r)
	if !ok {
		return
	}

	feature, action, ok := featureActionQuery(w, r)
	if !ok {
		return
	}

	rec := h.engine.GetUpgradeRecommendations(tier, feature, action)
	if rec == nil {
		core.NoContent(w)
		return
	}

	core.OK(w, UpgradePrompt{
		Tier:     rec.Tier,
		Benefits: rec.Benefits,
		URL:      h.upgradeLink(feature, action, rec.Tier),
	})
}

func (h *Handler) Matrix(w http.ResponseWriter, r *http.Request) {
	tier, ok := callerTier(w, r)
	if !ok {
		return
	}

	perms, found := h.engine.Checker().GetAllPermissions(tier)
	if !found {
		core.NotFound(w, "tier")
		return
	}

	core.OK(w, perms)
}

func featureActionQuery(w http.ResponseWriter, r *http.Request) (access.Feature, access.Action, bool) {
	q := r.URL.Query()

	feature, err := access.ParseFeature(q.Get("feature"))
	if err != nil {
		core.BadRequest(w, err.Error())
		return "", "", false
	}

	action, err := access.ParseAction(q.Get("action"))
	if err != nil {
		core.BadRequest(w, err.Error())
		return "", "", false
	}

	return feature, action, true
}
