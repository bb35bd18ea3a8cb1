// AngelaMos | 2026
// protect.go

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carterperez-dev/templates/access-control/internal/access"
	"github.com/carterperez-dev/templates/access-control/internal/core"
)

const (
	HeaderAccessTier       = "X-Access-Tier"
	HeaderAccessPermission = "X-Access-Permission"
	HeaderAccessConditions = "X-Access-Conditions"
)

// TierResolver looks up the caller's active subscription tier. ok is false
// when the user has no active subscription.
type TierResolver interface {
	GetUserTier(ctx context.Context, userID string) (tier access.Tier, ok bool, err error)
}

// Predicate is a caller-supplied final check. A false result denies with
// the returned reason.
type Predicate func(ctx context.Context, subject Subject, tier access.Tier) (bool, string)

// Rule describes what a protected route requires. A zero Rule only
// requires an identity with an active subscription.
type Rule struct {
	RequiredTier access.Tier
	Feature      access.Feature
	Resource     access.ResourceType
	Action       access.Action
	Metadata     func(*http.Request) map[string]any
	Custom       Predicate
	// TrackUsage counts one use of Feature/Action after a 2xx or 3xx response.
	TrackUsage bool
	// Redirect sends denied callers to this URL instead of a JSON body.
	Redirect string
}

func (r Rule) subject() string {
	if r.Resource != "" {
		return string(r.Resource)
	}
	return string(r.Feature)
}

// Subject carries the request facts the guard needs.
type Subject struct {
	UserID    string
	IPAddress string
	UserAgent string
	Endpoint  string
	Metadata  map[string]any
}

type DenialKind string

const (
	DenialUnauthenticated DenialKind = "unauthenticated"
	DenialNoSubscription  DenialKind = "no_subscription"
	DenialTier            DenialKind = "insufficient_tier"
	DenialPermission      DenialKind = "permission_denied"
	DenialUsageLimit      DenialKind = "usage_limit"
	DenialCustom          DenialKind = "custom"
	DenialInternal        DenialKind = "internal_error"
)

func (k DenialKind) status() int {
	switch k {
	case DenialUnauthenticated:
		return http.StatusUnauthorized
	case DenialNoSubscription:
		return http.StatusPaymentRequired
	case DenialUsageLimit:
		return http.StatusTooManyRequests
	case DenialInternal:
		return http.StatusInternalServerError
	}
	return http.StatusForbidden
}

func (k DenialKind) code() string {
	switch k {
	case DenialUnauthenticated:
		return "UNAUTHORIZED"
	case DenialNoSubscription:
		return "SUBSCRIPTION_REQUIRED"
	case DenialTier:
		return "TIER_REQUIRED"
	case DenialUsageLimit:
		return "USAGE_LIMIT_EXCEEDED"
	case DenialInternal:
		return "INTERNAL_ERROR"
	}
	return "ACCESS_DENIED"
}

func (k DenialKind) message() string {
	switch k {
	case DenialUnauthenticated:
		return "authentication required"
	case DenialNoSubscription:
		return "an active subscription is required"
	case DenialTier:
		return "your plan does not include this feature"
	case DenialUsageLimit:
		return "usage limit reached for this period"
	case DenialInternal:
		return "unable to verify access"
	}
	return "access denied"
}

// Decision is the outcome of Evaluate. Kind is empty when allowed.
type Decision struct {
	Allowed      bool
	Kind         DenialKind
	Tier         access.Tier
	RequiredTier access.Tier
	Result       access.AccessResult
	Err          error
	// RetryAfter is set on usage-limit denials with a resetting window.
	RetryAfter   time.Duration
}

type Guard struct {
	engine *access.Engine
	tiers  TierResolver
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

type GuardOption func(*Guard)

// WithClock overrides the request clock. It defaults to the engine clock.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

func WithTracer(t trace.Tracer) GuardOption {
	return func(g *Guard) {
		if t != nil {
			g.tracer = t
		}
	}
}

func NewGuard(
	engine *access.Engine,
	tiers TierResolver,
	logger *slog.Logger,
	opts ...GuardOption,
) *Guard {
	g := &Guard{
		engine: engine,
		tiers:  tiers,
		logger: logger,
		tracer: otel.Tracer("access-control/guard"),
		now:    engine.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) Engine() *access.Engine {
	return g.engine
}

// Evaluate verifies identity, resolves the tier, then applies the rule's
// tier requirement, permission check and custom predicate in that order.
func (g *Guard) Evaluate(ctx context.Context, s Subject, rule Rule) Decision {
	ctx, span := g.tracer.Start(ctx, "access.evaluate", trace.WithAttributes(
		attribute.String("access.subject", rule.subject()),
		attribute.String("access.action", string(rule.Action)),
	))
	defer span.End()

	d := g.evaluate(ctx, s, rule)

	span.SetAttributes(
		attribute.Bool("access.allowed", d.Allowed),
		attribute.String("access.tier", string(d.Tier)),
	)
	if !d.Allowed {
		span.SetAttributes(attribute.String("access.denial", string(d.Kind)))
	}
	if d.Err != nil {
		span.RecordError(d.Err)
		span.SetStatus(codes.Error, "access evaluation failed")
	}

	return d
}

func (g *Guard) evaluate(ctx context.Context, s Subject, rule Rule) Decision {
	if s.UserID == "" {
		return Decision{Kind: DenialUnauthenticated}
	}

	tier, ok, err := g.tiers.GetUserTier(ctx, s.UserID)
	if err != nil {
		return Decision{Kind: DenialInternal, Err: fmt.Errorf("resolve tier: %w", err)}
	}
	if !ok {
		return Decision{
			Kind: DenialNoSubscription,
			Result: access.AccessResult{
				Reason:          "No active subscription",
				UpgradeRequired: access.TierBasic,
			},
		}
	}

	d := Decision{Tier: tier, RequiredTier: rule.RequiredTier}

	if rule.RequiredTier != "" && !g.engine.HasTierAccess(tier, rule.RequiredTier) {
		d.Kind = DenialTier
		d.Result = access.AccessResult{
			Reason:          fmt.Sprintf("Requires %s tier or higher", rule.RequiredTier),
			UpgradeRequired: rule.RequiredTier,
		}
		return d
	}

	if rule.Action != "" && (rule.Feature != "" || rule.Resource != "") {
		now := g.now()
		uc := &access.UsageContext{
			UserID:    s.UserID,
			Feature:   rule.Feature,
			Action:    rule.Action,
			Timestamp: now,
			Metadata:  s.Metadata,
			IPAddress: s.IPAddress,
			UserAgent: s.UserAgent,
			Endpoint:  s.Endpoint,
		}

		if rule.Resource != "" {
			d.Result = g.engine.CheckResourcePermission(ctx, tier, rule.Resource, rule.Action, uc)
		} else {
			d.Result = g.engine.CheckPermission(ctx, tier, rule.Feature, rule.Action, uc)
		}

		if !d.Result.Allowed {
			d.Kind = permissionDenial(d.Result)
			d.Err = d.Result.Err
			if d.Kind == DenialUsageLimit {
				d.RetryAfter = retryAfter(d.Result, now)
			}
			return d
		}
	} else {
		d.Result = access.AccessResult{Allowed: true, Permission: access.PermissionRead}
	}

	if rule.Custom != nil {
		if allowed, reason := rule.Custom(ctx, s, tier); !allowed {
			d.Kind = DenialCustom
			d.Result = access.AccessResult{
				Permission: access.PermissionNone,
				Reason:     reason,
			}
			return d
		}
	}

	d.Allowed = true
	return d
}

// retryAfter is the time until the earliest blocking usage window resets.
// Lifetime quotas never reset and yield zero.
func retryAfter(r access.AccessResult, now time.Time) time.Duration {
	var wait time.Duration
	for _, c := range r.Conditions {
		if !c.Blocking || c.Type != access.ConditionUsageLimit {
			continue
		}
		v, ok := c.Value.(access.UsageLimitValue)
		if !ok {
			continue
		}
		reset := access.WindowReset(now, v.Window)
		if reset.IsZero() {
			continue
		}
		if d := reset.Sub(now); wait == 0 || d < wait {
			wait = d
		}
	}
	return wait
}

func permissionDenial(r access.AccessResult) DenialKind {
	if r.Err != nil {
		return DenialInternal
	}
	for _, c := range r.Conditions {
		if c.Blocking && c.Type == access.ConditionUsageLimit {
			return DenialUsageLimit
		}
	}
	return DenialPermission
}

// Protect enforces rule on every request. Allowed requests carry the
// resolved tier in their context.
func (g *Guard) Protect(rule Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := SubjectFromRequest(r)
			if rule.Metadata != nil {
				s.Metadata = rule.Metadata(r)
			}

			d := g.Evaluate(r.Context(), s, rule)
			if !d.Allowed {
				g.logDenial(r, s, rule, d)
				if rule.Redirect != "" {
					redirectDenied(w, r, rule, d)
					return
				}
				writeDenied(w, rule, d)
				return
			}

			setAccessHeaders(w, d)
			ctx := WithTier(r.Context(), d.Tier)

			if !rule.TrackUsage || rule.Feature == "" {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if wrapped.status >= 200 && wrapped.status < 400 {
				g.track(r, s, rule)
			}
		})
	}
}

func (g *Guard) track(r *http.Request, s Subject, rule Rule) {
	err := g.engine.TrackUsage(context.WithoutCancel(r.Context()), access.UsageContext{
		UserID:    s.UserID,
		Feature:   rule.Feature,
		Action:    rule.Action,
		Metadata:  s.Metadata,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
		Endpoint:  s.Endpoint,
	})
	if err != nil {
		g.logger.Error("usage tracking failed",
			"user_id", s.UserID,
			"feature", rule.Feature,
			"action", rule.Action,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
	}
}

func (g *Guard) logDenial(r *http.Request, s Subject, rule Rule, d Decision) {
	attrs := []any{
		"user_id", s.UserID,
		"tier", d.Tier,
		"subject", rule.subject(),
		"action", rule.Action,
		"kind", d.Kind,
		"endpoint", s.Endpoint,
		"request_id", GetRequestID(r.Context()),
	}

	if d.Kind == DenialInternal {
		g.logger.Error("access check failed", append(attrs, "error", d.Err)...)
		return
	}

	g.logger.Info("access denied", append(attrs, "reason", d.Result.Reason)...)
}

func SubjectFromRequest(r *http.Request) Subject {
	return Subject{
		UserID:    GetUserID(r.Context()),
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.Method + " " + r.URL.Path,
	}
}

func setAccessHeaders(w http.ResponseWriter, d Decision) {
	h := w.Header()
	h.Set(HeaderAccessTier, string(d.Tier))
	h.Set(HeaderAccessPermission, d.Result.Permission.String())

	if len(d.Result.Conditions) > 0 {
		types := make([]string, 0, len(d.Result.Conditions))
		for _, c := range d.Result.Conditions {
			types = append(types, string(c.Type))
		}
		h.Set(HeaderAccessConditions, strings.Join(types, ","))
	}
}

// DeniedResponse is the JSON body of a denied request. Internal errors
// never carry a reason.
type DeniedResponse struct {
	Success         bool                     `json:"success"`
	Error           core.ErrorBody           `json:"error"`
	CurrentTier     access.Tier              `json:"currentTier"`
	RequiredTier    access.Tier              `json:"requiredTier,omitempty"`
	Feature         access.Feature           `json:"feature,omitempty"`
	Resource        access.ResourceType      `json:"resource,omitempty"`
	Action          access.Action            `json:"action,omitempty"`
	Reason          string                   `json:"reason,omitempty"`
	UpgradeRequired access.Tier              `json:"upgradeRequired,omitempty"`
	Conditions      []access.AccessCondition `json:"conditions,omitempty"`
}

func NewDeniedResponse(rule Rule, d Decision) DeniedResponse {
	body := DeniedResponse{
		Error: core.ErrorBody{
			Code:    d.Kind.code(),
			Message: d.Kind.message(),
		},
		CurrentTier:  d.Tier,
		RequiredTier: d.RequiredTier,
		Feature:      rule.Feature,
		Resource:     rule.Resource,
		Action:       rule.Action,
	}

	if d.Kind != DenialInternal {
		body.Reason = d.Result.Reason
		body.UpgradeRequired = d.Result.UpgradeRequired
		body.Conditions = d.Result.Conditions
	}

	return body
}

func writeDenied(w http.ResponseWriter, rule Rule, d Decision) {
	if d.Kind == DenialUsageLimit && d.RetryAfter > 0 {
		secs := int64(math.Ceil(d.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	core.JSON(w, d.Kind.status(), NewDeniedResponse(rule, d))
}

func redirectDenied(w http.ResponseWriter, r *http.Request, rule Rule, d Decision) {
	target, err := url.Parse(rule.Redirect)
	if err != nil {
		writeDenied(w, rule, d)
		return
	}

	q := target.Query()
	if subject := rule.subject(); subject != "" {
		q.Set("feature", subject)
	}
	if rule.Action != "" {
		q.Set("action", string(rule.Action))
	}
	if d.Kind == DenialInternal {
		q.Set("reason", string(DenialInternal))
	} else if d.Result.Reason != "" {
		q.Set("reason", d.Result.Reason)
	}
	if d.Result.UpgradeRequired != "" && d.Kind != DenialInternal {
		q.Set("upgrade", string(d.Result.UpgradeRequired))
	}
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}
