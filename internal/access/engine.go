// AngelaMos | 2026
// engine.go

package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"
)

// Engine evaluates tier permissions and tracks usage quotas. Check methods
// never fail: every problem becomes a denial with a reason. Only TrackUsage
// and the direct counter accessors return errors.
type Engine struct {
	checker    *Checker
	store      CounterStore
	conditions map[string]ConditionFunc
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithCondition registers or replaces a custom condition evaluator.
func WithCondition(name string, fn ConditionFunc) Option {
	return func(e *Engine) {
		if name != "" && fn != nil {
			e.conditions[name] = fn
		}
	}
}

func NewEngine(matrix *Matrix, store CounterStore, opts ...Option) (*Engine, error) {
	if matrix == nil {
		return nil, errors.New("access: matrix is required")
	}
	if store == nil {
		return nil, errors.New("access: counter store is required")
	}

	e := &Engine{
		checker:    NewChecker(matrix),
		store:      store,
		conditions: defaultConditions(),
		observer:   nopObserver{},
		logger:     slog.Default(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	for _, name := range matrix.customConditionNames() {
		if _, ok := e.conditions[name]; !ok {
			return nil, fmt.Errorf("%w: matrix references %q", ErrUnknownCondition, name)
		}
	}

	return e, nil
}

func (e *Engine) Checker() *Checker {
	return e.checker
}

// Now reads the engine clock. Callers stamp UsageContext.Timestamp with it so
// window checks and counter buckets agree on the time.
func (e *Engine) Now() time.Time {
	return e.now()
}

func (e *Engine) HasTierAccess(user, required Tier) bool {
	return HasTierAccess(user, required)
}

// target abstracts over the feature and resource tables.
type target struct {
	kind    DecisionKind
	subject string
	action  Action
	lookup  func(Tier) (Grant, bool)
	minimum func(Tier) (Tier, bool)
}

func (e *Engine) featureTarget(feature Feature, action Action) target {
	return target{
		kind:    DecisionFeature,
		subject: string(feature),
		action:  action,
		lookup: func(t Tier) (Grant, bool) {
			return e.checker.GetFeaturePermission(t, feature, action)
		},
		minimum: func(t Tier) (Tier, bool) {
			return e.checker.MinimumFeatureTier(t, feature, action)
		},
	}
}

func (e *Engine) resourceTarget(resource ResourceType, action Action) target {
	return target{
		kind:    DecisionResource,
		subject: string(resource),
		action:  action,
		lookup: func(t Tier) (Grant, bool) {
			return e.checker.GetResourcePermission(t, resource, action)
		},
		minimum: func(t Tier) (Tier, bool) {
			return e.checker.MinimumResourceTier(t, resource, action)
		},
	}
}

func (e *Engine) CheckPermission(
	ctx context.Context,
	tier Tier,
	feature Feature,
	action Action,
	uc *UsageContext,
) AccessResult {
	t := e.featureTarget(feature, action)
	result := e.evaluate(ctx, tier, t, uc)
	e.record(tier, t, uc, result)
	return result
}

func (e *Engine) CheckResourcePermission(
	ctx context.Context,
	tier Tier,
	resource ResourceType,
	action Action,
	uc *UsageContext,
) AccessResult {
	t := e.resourceTarget(resource, action)
	result := e.evaluate(ctx, tier, t, uc)
	e.record(tier, t, uc, result)
	return result
}

func (e *Engine) evaluate(
	ctx context.Context,
	tier Tier,
	t target,
	uc *UsageContext,
) (result AccessResult) {
	defer func() {
		if r := recover(); r != nil {
			result = internalError(fmt.Errorf("panic: %v", r))
		}
	}()

	g, ok := t.lookup(tier)
	if !ok {
		return e.deny(tier, t, fmt.Sprintf(
			"Permission not defined for %s:%s on %s tier",
			t.subject, t.action, tier,
		), nil)
	}

	if g.Permission == PermissionNone {
		return e.deny(tier, t, fmt.Sprintf(
			"%s tier does not grant %s:%s",
			tier, t.subject, t.action,
		), nil)
	}

	if !g.IsConditional() {
		return AccessResult{Allowed: true, Permission: g.Permission}
	}

	conditions, err := e.evaluateConditions(ctx, t, g, uc)
	if err != nil {
		return internalError(err)
	}

	var blocking []string
	for _, c := range conditions {
		if c.Blocking {
			blocking = append(blocking, c.Message)
		}
	}

	if len(blocking) > 0 {
		return e.deny(tier, t, strings.Join(blocking, "; "), conditions)
	}

	return AccessResult{
		Allowed:    true,
		Permission: g.Permission,
		Conditions: conditions,
	}
}

func (e *Engine) evaluateConditions(
	ctx context.Context,
	t target,
	g Grant,
	uc *UsageContext,
) ([]AccessCondition, error) {
	var conditions []AccessCondition
	now := e.now()

	if g.UsageLimit != nil && uc != nil && uc.UserID != "" {
		key := UsageKey(uc.UserID, t.subject, t.action, Bucket(now, g.TimeRestriction))
		current, err := e.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read usage: %w", err)
		}
		if current >= *g.UsageLimit {
			conditions = append(conditions, AccessCondition{
				Type: ConditionUsageLimit,
				Value: UsageLimitValue{
					Limit:   *g.UsageLimit,
					Current: current,
					Window:  g.TimeRestriction,
				},
				Message: fmt.Sprintf(
					"Usage limit exceeded: %d/%d uses per %s",
					current, *g.UsageLimit, windowLabel(g.TimeRestriction),
				),
				Blocking: true,
			})
		}
	}

	if g.RequiresApproval {
		conditions = append(conditions, AccessCondition{
			Type:    ConditionApprovalRequired,
			Value:   true,
			Message: "This action requires approval",
		})
	}

	if g.TimeRestriction != WindowLifetime && uc != nil && !uc.Timestamp.IsZero() {
		if !withinWindow(uc.Timestamp, now, g.TimeRestriction) {
			conditions = append(conditions, AccessCondition{
				Type:     ConditionTimeRestriction,
				Value:    g.TimeRestriction,
				Message:  fmt.Sprintf("Request falls outside the current %s window", windowLabel(g.TimeRestriction)),
				Blocking: true,
			})
		}
	}

	names := make([]string, 0, len(g.Conditions))
	for name := range g.Conditions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fn, ok := e.conditions[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCondition, name)
		}
		declared := g.Conditions[name]
		outcome, err := fn(declared, uc)
		if err != nil {
			return nil, err
		}
		if outcome.Satisfied {
			continue
		}
		message := outcome.Message
		if message == "" {
			message = fmt.Sprintf("Condition %s not satisfied", name)
		}
		conditions = append(conditions, AccessCondition{
			Type: ConditionCustom,
			Value: CustomConditionValue{
				Name:     name,
				Blocking: outcome.Blocking,
				Declared: declared,
				Observed: outcome.Observed,
			},
			Message:  message,
			Blocking: outcome.Blocking,
		})
	}

	return conditions, nil
}

func (e *Engine) deny(
	tier Tier,
	t target,
	reason string,
	conditions []AccessCondition,
) AccessResult {
	result := AccessResult{
		Allowed:    false,
		Permission: PermissionNone,
		Conditions: conditions,
		Reason:     reason,
	}
	if upgrade, ok := t.minimum(tier); ok {
		result.UpgradeRequired = upgrade
	}
	return result
}

func internalError(err error) AccessResult {
	return AccessResult{
		Allowed:    false,
		Permission: PermissionNone,
		Reason:     "Error checking permission: " + err.Error(),
		Err:        err,
	}
}

func (e *Engine) record(tier Tier, t target, uc *UsageContext, result AccessResult) {
	e.observer.ObserveDecision(t.kind, t.subject, string(t.action), result)

	if result.Allowed {
		return
	}

	var userID string
	if uc != nil {
		userID = uc.UserID
	}

	if result.Err != nil {
		e.logger.Error("permission evaluation failed",
			"user_id", userID,
			"tier", tier,
			"kind", t.kind,
			"subject", t.subject,
			"action", t.action,
			"error", result.Err,
		)
		return
	}

	e.logger.Info("permission denied",
		"user_id", userID,
		"tier", tier,
		"kind", t.kind,
		"subject", t.subject,
		"action", t.action,
		"reason", result.Reason,
		"upgrade_required", result.UpgradeRequired,
	)
}

// CheckTierLimits compares currentValue against the tier's cap for limitType.
func (e *Engine) CheckTierLimits(
	tier Tier,
	limitType LimitType,
	currentValue int64,
) AccessResult {
	result := e.checkTierLimits(tier, limitType, currentValue)
	e.observer.ObserveDecision(DecisionLimit, string(limitType), "", result)
	return result
}

func (e *Engine) checkTierLimits(
	tier Tier,
	limitType LimitType,
	currentValue int64,
) AccessResult {
	limits, ok := e.checker.GetTierLimits(tier)
	if !ok {
		return AccessResult{
			Permission: PermissionNone,
			Reason:     fmt.Sprintf("Tier limits not defined for %s", tier),
		}
	}

	limit, ok := limits.Get(limitType)
	if !ok {
		return AccessResult{
			Permission: PermissionNone,
			Reason:     fmt.Sprintf("Unknown limit type %s", limitType),
		}
	}

	if IsUnlimited(limit) {
		return AccessResult{Allowed: true, Permission: PermissionAdmin}
	}

	if currentValue < limit {
		return AccessResult{Allowed: true, Permission: PermissionWrite}
	}

	result := AccessResult{
		Permission: PermissionNone,
		Reason: fmt.Sprintf(
			"Limit reached for %s: %d of %d",
			limitType, currentValue, limit,
		),
	}
	if upgrade, ok := e.checker.NextLimitTier(tier, limitType); ok {
		result.UpgradeRequired = upgrade
	}
	return result
}

// TrackUsage counts one use of a feature action. The usage-limit shape is
// taken from the basic tier's entry regardless of the caller's tier; entries
// without both a usage limit and a time window are not counted.
func (e *Engine) TrackUsage(ctx context.Context, uc UsageContext) error {
	if uc.UserID == "" || uc.Feature == "" || uc.Action == "" {
		return fmt.Errorf(
			"%w: userId, feature and action are required",
			ErrInvalidUsageContext,
		)
	}

	shape, ok := e.checker.GetFeaturePermission(TierBasic, uc.Feature, uc.Action)
	if !ok || !shape.HasQuota() {
		return nil
	}

	now := e.now()
	key := UsageKey(uc.UserID, string(uc.Feature), uc.Action, Bucket(now, shape.TimeRestriction))

	count, err := e.store.Increment(ctx, key, bucketTTL(now, shape.TimeRestriction))
	if err != nil {
		return fmt.Errorf("track usage: %w", err)
	}

	e.observer.ObserveUsage(uc.Feature, uc.Action, count)
	e.logger.Debug("usage tracked",
		"user_id", uc.UserID,
		"feature", uc.Feature,
		"action", uc.Action,
		"count", count,
	)

	return nil
}

func (e *Engine) GetCurrentUsage(
	ctx context.Context,
	userID string,
	feature Feature,
	action Action,
	window TimeRestriction,
) (int64, error) {
	key := UsageKey(userID, string(feature), action, Bucket(e.now(), window))
	count, err := e.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("get usage: %w", err)
	}
	return count, nil
}

func (e *Engine) ResetUsage(
	ctx context.Context,
	userID string,
	feature Feature,
	action Action,
	window TimeRestriction,
) error {
	key := UsageKey(userID, string(feature), action, Bucket(e.now(), window))
	if err := e.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	e.logger.Info("usage reset",
		"user_id", userID,
		"feature", feature,
		"action", action,
		"window", window,
	)
	return nil
}

// UsageSnapshot reports every quota the tier grants with the user's current
// usage against it.
func (e *Engine) UsageSnapshot(
	ctx context.Context,
	tier Tier,
	userID string,
) ([]UsageMeter, error) {
	var meters []UsageMeter
	for _, feature := range featureOrder {
		for _, action := range actionOrder {
			g, ok := e.checker.GetFeaturePermission(tier, feature, action)
			if !ok || g.Permission == PermissionNone || !g.HasQuota() {
				continue
			}
			used, err := e.GetCurrentUsage(ctx, userID, feature, action, g.TimeRestriction)
			if err != nil {
				return nil, err
			}
			meters = append(meters, UsageMeter{
				Feature:   feature,
				Action:    action,
				Window:    g.TimeRestriction,
				Used:      used,
				Limit:     *g.UsageLimit,
				Remaining: max(*g.UsageLimit-used, 0),
			})
		}
	}
	return meters, nil
}

// GetAvailableFeatures lists features where at least one action is granted.
func (e *Engine) GetAvailableFeatures(tier Tier) []Feature {
	all, ok := e.checker.GetAllPermissions(tier)
	if !ok {
		return []Feature{}
	}

	features := []Feature{}
	for _, feature := range featureOrder {
		for _, g := range all.Features[feature] {
			if g.Permission != PermissionNone {
				features = append(features, feature)
				break
			}
		}
	}
	return features
}

// GetUpgradeRecommendations returns nil when the tier already grants the
// action or no higher tier does.
func (e *Engine) GetUpgradeRecommendations(
	currentTier Tier,
	feature Feature,
	action Action,
) *UpgradeRecommendation {
	if g, ok := e.checker.GetFeaturePermission(currentTier, feature, action); ok &&
		g.Permission != PermissionNone {
		return nil
	}

	required, ok := e.checker.MinimumFeatureTier(currentTier, feature, action)
	if !ok {
		return nil
	}

	current, _ := e.checker.GetAllPermissions(currentTier)
	next, _ := e.checker.GetAllPermissions(required)

	return &UpgradeRecommendation{
		Tier:     required,
		Benefits: upgradeBenefits(current, next),
	}
}

// UpgradeBenefits lists what moving from current to target adds. It is empty
// when either tier is unknown.
func (e *Engine) UpgradeBenefits(current, target Tier) []string {
	from, ok := e.checker.GetAllPermissions(current)
	if !ok {
		return []string{}
	}
	to, ok := e.checker.GetAllPermissions(target)
	if !ok {
		return []string{}
	}
	return upgradeBenefits(from, to)
}

func upgradeBenefits(current, next ResolvedPermissions) []string {
	benefits := []string{}

	for _, lt := range limitOrder {
		from, _ := current.Limits.Get(lt)
		to, _ := next.Limits.Get(lt)
		switch {
		case IsUnlimited(from):
		case IsUnlimited(to):
			benefits = append(benefits, fmt.Sprintf("Unlimited %s", lt))
		case to > from:
			benefits = append(benefits, fmt.Sprintf("%s increases from %d to %d", lt, from, to))
		}
	}

	for _, feature := range featureOrder {
		var gained []string
		for _, action := range actionOrder {
			g, ok := next.Features[feature][action]
			if !ok || g.Permission == PermissionNone {
				continue
			}
			if prev, had := current.Features[feature][action]; had && prev.Permission != PermissionNone {
				continue
			}
			gained = append(gained, string(action))
		}
		if len(gained) > 0 {
			benefits = append(benefits, fmt.Sprintf("Access to %s: %s", feature, strings.Join(gained, ", ")))
		}
	}

	return slices.Clip(benefits)
}
