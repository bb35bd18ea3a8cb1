// AngelaMos | 2026
// result.go

package access

import (
	"context"
	"time"
)

// UsageContext carries caller and transport details into a check.
// Timestamp is optional; a zero value skips time-window checks.
type UsageContext struct {
	UserID    string         `json:"userId"`
	Feature   Feature        `json:"feature"`
	Action    Action         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IPAddress string         `json:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	Endpoint  string         `json:"endpoint,omitempty"`
}

type ConditionType string

const (
	ConditionUsageLimit       ConditionType = "usage_limit"
	ConditionTimeRestriction  ConditionType = "time_restriction"
	ConditionApprovalRequired ConditionType = "approval_required"
	ConditionCustom           ConditionType = "custom"
)

// AccessCondition explains why a conditional permission blocked, or
// annotates a non-blocking caveat.
type AccessCondition struct {
	Type     ConditionType `json:"type"`
	Value    any           `json:"value,omitempty"`
	Message  string        `json:"message"`
	Blocking bool          `json:"blocking"`
}

type UsageLimitValue struct {
	Limit   int64           `json:"limit"`
	Current int64           `json:"current"`
	Window  TimeRestriction `json:"window,omitempty"`
}

type CustomConditionValue struct {
	Name     string `json:"name"`
	Blocking bool   `json:"blocking"`
	Declared any    `json:"declared"`
	Observed any    `json:"observed,omitempty"`
}

// AccessResult is the outcome of every check. Err is set only for internal
// evaluation failures and is never serialized.
type AccessResult struct {
	Allowed         bool              `json:"allowed"`
	Permission      Permission        `json:"permission"`
	Conditions      []AccessCondition `json:"conditions,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	UpgradeRequired Tier              `json:"upgradeRequired,omitempty"`
	Err             error             `json:"-"`
}

func (r AccessResult) HasCondition(t ConditionType) bool {
	for _, c := range r.Conditions {
		if c.Type == t {
			return true
		}
	}
	return false
}

type UpgradeRecommendation struct {
	Tier     Tier     `json:"tier"`
	Benefits []string `json:"benefits"`
}

// UsageMeter reports counted usage of one quota'd feature action.
type UsageMeter struct {
	Feature   Feature         `json:"feature"`
	Action    Action          `json:"action"`
	Window    TimeRestriction `json:"window"`
	Used      int64           `json:"used"`
	Limit     int64           `json:"limit"`
	Remaining int64           `json:"remaining"`
}

// CounterStore is a keyed counter with atomic per-key increments. A ttl of
// zero means the key never expires.
type CounterStore interface {
	Get(ctx context.Context, key string) (int64, error)
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

type DecisionKind string

const (
	DecisionFeature  DecisionKind = "feature"
	DecisionResource DecisionKind = "resource"
	DecisionLimit    DecisionKind = "limit"
)

// Observer receives engine events, typically for metrics.
type Observer interface {
	ObserveDecision(kind DecisionKind, subject, action string, result AccessResult)
	ObserveUsage(feature Feature, action Action, count int64)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(DecisionKind, string, string, AccessResult) {}
func (nopObserver) ObserveUsage(Feature, Action, int64)                        {}
