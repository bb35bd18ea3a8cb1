// AngelaMos | 2026
// catalog.go

package access

import (
	"fmt"
	"slices"
	"strings"
)

// Feature names a capability area gated per tier.
type Feature string

const (
	FeatureDashboard   Feature = "dashboard"
	FeatureEvaluations Feature = "evaluations"
	FeatureReports     Feature = "reports"
	FeatureAIAnalysis  Feature = "ai_analysis"
	FeatureScenarios   Feature = "scenarios"
	FeatureAnalytics   Feature = "analytics"
	FeatureAPIAccess   Feature = "api_access"
	FeatureTeam        Feature = "team"
	FeatureAdmin       Feature = "admin"
)

// Action names an operation within a feature or on a resource.
type Action string

const (
	ActionView      Action = "view"
	ActionCreate    Action = "create"
	ActionEdit      Action = "edit"
	ActionDelete    Action = "delete"
	ActionShare     Action = "share"
	ActionExport    Action = "export"
	ActionConfigure Action = "configure"
	ActionManage    Action = "manage"
)

// ResourceType names an object class gated at object level.
type ResourceType string

const (
	ResourceDocuments    ResourceType = "documents"
	ResourceTemplates    ResourceType = "templates"
	ResourceData         ResourceType = "data"
	ResourceIntegrations ResourceType = "integrations"
)

var (
	featureOrder = []Feature{
		FeatureDashboard,
		FeatureEvaluations,
		FeatureReports,
		FeatureAIAnalysis,
		FeatureScenarios,
		FeatureAnalytics,
		FeatureAPIAccess,
		FeatureTeam,
		FeatureAdmin,
	}
	actionOrder = []Action{
		ActionView,
		ActionCreate,
		ActionEdit,
		ActionDelete,
		ActionShare,
		ActionExport,
		ActionConfigure,
		ActionManage,
	}
	resourceOrder = []ResourceType{
		ResourceDocuments,
		ResourceTemplates,
		ResourceData,
		ResourceIntegrations,
	}
)

func Features() []Feature           { return slices.Clone(featureOrder) }
func Actions() []Action             { return slices.Clone(actionOrder) }
func ResourceTypes() []ResourceType { return slices.Clone(resourceOrder) }

func (f Feature) Valid() bool      { return slices.Contains(featureOrder, f) }
func (a Action) Valid() bool       { return slices.Contains(actionOrder, a) }
func (r ResourceType) Valid() bool { return slices.Contains(resourceOrder, r) }

func ParseFeature(s string) (Feature, error) {
	f := Feature(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFeature, s)
	}
	return f, nil
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

func ParseResourceType(s string) (ResourceType, error) {
	r := ResourceType(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, s)
	}
	return r, nil
}

// LimitType names a quantitative per-tier cap.
type LimitType string

const (
	LimitMaxReports        LimitType = "maxReports"
	LimitMaxEvaluations    LimitType = "maxEvaluations"
	LimitMaxAIAnalyses     LimitType = "maxAiAnalyses"
	LimitMaxScenarios      LimitType = "maxScenarios"
	LimitStorage           LimitType = "storageLimit"
	LimitAPICallsPerMonth  LimitType = "apiCallsPerMonth"
	LimitConcurrentUsers   LimitType = "concurrentUsers"
	LimitDataRetentionDays LimitType = "dataRetentionDays"
)

// Unlimited is the sentinel for an uncapped limit.
const Unlimited int64 = -1

var limitOrder = []LimitType{
	LimitMaxReports,
	LimitMaxEvaluations,
	LimitMaxAIAnalyses,
	LimitMaxScenarios,
	LimitStorage,
	LimitAPICallsPerMonth,
	LimitConcurrentUsers,
	LimitDataRetentionDays,
}

func LimitTypes() []LimitType { return slices.Clone(limitOrder) }

func ParseLimitType(s string) (LimitType, error) {
	trimmed := strings.TrimSpace(s)
	for _, lt := range limitOrder {
		if strings.EqualFold(string(lt), trimmed) {
			return lt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLimitType, s)
}

// TierLimits holds the quantitative caps of one tier. StorageLimit is in MB.
type TierLimits struct {
	MaxReports        int64 `json:"maxReports"`
	MaxEvaluations    int64 `json:"maxEvaluations"`
	MaxAIAnalyses     int64 `json:"maxAiAnalyses"`
	MaxScenarios      int64 `json:"maxScenarios"`
	StorageLimit      int64 `json:"storageLimit"`
	APICallsPerMonth  int64 `json:"apiCallsPerMonth"`
	ConcurrentUsers   int64 `json:"concurrentUsers"`
	DataRetentionDays int64 `json:"dataRetentionDays"`
}

func (l TierLimits) Get(lt LimitType) (int64, bool) {
	switch lt {
	case LimitMaxReports:
		return l.MaxReports, true
	case LimitMaxEvaluations:
		return l.MaxEvaluations, true
	case LimitMaxAIAnalyses:
		return l.MaxAIAnalyses, true
	case LimitMaxScenarios:
		return l.MaxScenarios, true
	case LimitStorage:
		return l.StorageLimit, true
	case LimitAPICallsPerMonth:
		return l.APICallsPerMonth, true
	case LimitConcurrentUsers:
		return l.ConcurrentUsers, true
	case LimitDataRetentionDays:
		return l.DataRetentionDays, true
	}
	return 0, false
}

func IsUnlimited(limit int64) bool {
	return limit == Unlimited
}
