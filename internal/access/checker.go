// AngelaMos | 2026
// checker.go

package access

// Checker performs stateless lookups over a Matrix. Unknown tiers and
// undeclared entries report false rather than failing; callers must treat
// that as a denial.
type Checker struct {
	matrix *Matrix
}

func NewChecker(matrix *Matrix) *Checker {
	return &Checker{matrix: matrix}
}

func (c *Checker) GetFeaturePermission(
	tier Tier,
	feature Feature,
	action Action,
) (Grant, bool) {
	resolved, ok := c.matrix.resolved[tier]
	if !ok {
		return Grant{}, false
	}
	g, ok := resolved.Features[feature][action]
	if !ok {
		return Grant{}, false
	}
	return g.clone(), true
}

func (c *Checker) GetResourcePermission(
	tier Tier,
	resource ResourceType,
	action Action,
) (Grant, bool) {
	resolved, ok := c.matrix.resolved[tier]
	if !ok {
		return Grant{}, false
	}
	g, ok := resolved.Resources[resource][action]
	if !ok {
		return Grant{}, false
	}
	return g.clone(), true
}

func (c *Checker) GetTierLimits(tier Tier) (TierLimits, bool) {
	resolved, ok := c.matrix.resolved[tier]
	if !ok {
		return TierLimits{}, false
	}
	return resolved.Limits, true
}

// GetAllPermissions returns a copy of the tier's merged tables and its own limits.
func (c *Checker) GetAllPermissions(tier Tier) (ResolvedPermissions, bool) {
	resolved, ok := c.matrix.resolved[tier]
	if !ok {
		return ResolvedPermissions{}, false
	}
	return ResolvedPermissions{
		Tier:      resolved.Tier,
		Features:  cloneTable(resolved.Features),
		Resources: cloneTable(resolved.Resources),
		Limits:    resolved.Limits,
	}, true
}

func (c *Checker) IsWithinUsageLimit(
	tier Tier,
	limitType LimitType,
	currentUsage int64,
) bool {
	limits, ok := c.GetTierLimits(tier)
	if !ok {
		return false
	}
	limit, ok := limits.Get(limitType)
	if !ok {
		return false
	}
	return IsUnlimited(limit) || currentUsage < limit
}

func (c *Checker) HasTierAccess(user, required Tier) bool {
	return HasTierAccess(user, required)
}

// MinimumFeatureTier returns the lowest tier ranked above current whose base
// permission for the feature action is not none. Caps are ignored: a higher
// tier with a larger quota still qualifies.
func (c *Checker) MinimumFeatureTier(
	current Tier,
	feature Feature,
	action Action,
) (Tier, bool) {
	return c.minimumTier(current, func(t Tier) (Grant, bool) {
		return c.GetFeaturePermission(t, feature, action)
	})
}

func (c *Checker) MinimumResourceTier(
	current Tier,
	resource ResourceType,
	action Action,
) (Tier, bool) {
	return c.minimumTier(current, func(t Tier) (Grant, bool) {
		return c.GetResourcePermission(t, resource, action)
	})
}

func (c *Checker) minimumTier(
	current Tier,
	lookup func(Tier) (Grant, bool),
) (Tier, bool) {
	for _, candidate := range tiersAbove(current) {
		g, ok := lookup(candidate)
		if ok && g.Permission != PermissionNone {
			return candidate, true
		}
	}
	return "", false
}

// NextLimitTier returns the first tier above current whose limit for
// limitType is unlimited or strictly greater than current's.
func (c *Checker) NextLimitTier(current Tier, limitType LimitType) (Tier, bool) {
	limits, ok := c.GetTierLimits(current)
	if !ok {
		return "", false
	}
	base, ok := limits.Get(limitType)
	if !ok || IsUnlimited(base) {
		return "", false
	}
	for _, candidate := range tiersAbove(current) {
		next, ok := c.GetTierLimits(candidate)
		if !ok {
			continue
		}
		v, _ := next.Get(limitType)
		if IsUnlimited(v) || v > base {
			return candidate, true
		}
	}
	return "", false
}
