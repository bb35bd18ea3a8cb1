// AngelaMos | 2026
// permission.go

package access

import (
	"fmt"
	"maps"
	"strings"
)

// Permission is the maximum capability granted. Values are ordered, not combined.
type Permission int

const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionWrite
	PermissionAdmin
)

var permissionNames = [...]string{"none", "read", "write", "admin"}

func (p Permission) String() string {
	if p < PermissionNone || int(p) >= len(permissionNames) {
		return fmt.Sprintf("permission(%d)", int(p))
	}
	return permissionNames[p]
}

func (p Permission) Valid() bool {
	return p >= PermissionNone && p <= PermissionAdmin
}

func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Permission) UnmarshalText(b []byte) error {
	parsed, err := ParsePermission(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func ParsePermission(s string) (Permission, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, candidate := range permissionNames {
		if candidate == name {
			return Permission(i), nil
		}
	}
	return PermissionNone, fmt.Errorf("%w: %q", ErrUnknownPermission, s)
}

// TimeRestriction is the window a usage limit applies to. Empty means lifetime.
type TimeRestriction string

const (
	WindowLifetime TimeRestriction = ""
	WindowDaily    TimeRestriction = "daily"
	WindowWeekly   TimeRestriction = "weekly"
	WindowMonthly  TimeRestriction = "monthly"
)

func (w TimeRestriction) Valid() bool {
	switch w {
	case WindowLifetime, WindowDaily, WindowWeekly, WindowMonthly:
		return true
	}
	return false
}

func ParseTimeRestriction(s string) (TimeRestriction, error) {
	w := TimeRestriction(strings.ToLower(strings.TrimSpace(s)))
	if w == "lifetime" {
		return WindowLifetime, nil
	}
	if !w.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownWindow, s)
	}
	return w, nil
}

// Grant is a matrix entry: a plain Permission, or a conditional one when any
// constraint field is set.
type Grant struct {
	Permission       Permission      `json:"permission"`
	UsageLimit       *int64          `json:"usageLimit,omitempty"`
	TimeRestriction  TimeRestriction `json:"timeRestriction,omitempty"`
	RequiresApproval bool            `json:"requiresApproval,omitempty"`
	Conditions       map[string]any  `json:"conditions,omitempty"`
}

func NewGrant(p Permission) Grant {
	return Grant{Permission: p}
}

// NewQuota returns a grant capped at limit uses per window.
func NewQuota(p Permission, limit int64, window TimeRestriction) Grant {
	return Grant{Permission: p, UsageLimit: &limit, TimeRestriction: window}
}

func (g Grant) WithApproval() Grant {
	g = g.clone()
	g.RequiresApproval = true
	return g
}

func (g Grant) WithCondition(name string, declared any) Grant {
	g = g.clone()
	if g.Conditions == nil {
		g.Conditions = make(map[string]any, 1)
	}
	g.Conditions[name] = declared
	return g
}

func (g Grant) IsConditional() bool {
	return g.UsageLimit != nil ||
		g.TimeRestriction != WindowLifetime ||
		g.RequiresApproval ||
		len(g.Conditions) > 0
}

// HasQuota reports whether usage of this grant is counted in a time window.
func (g Grant) HasQuota() bool {
	return g.UsageLimit != nil && g.TimeRestriction != WindowLifetime
}

func (g Grant) clone() Grant {
	if g.UsageLimit != nil {
		limit := *g.UsageLimit
		g.UsageLimit = &limit
	}
	if g.Conditions != nil {
		g.Conditions = maps.Clone(g.Conditions)
	}
	return g
}
