// AngelaMos | 2026
// defaults.go

package access

import "sync"

const (
	ConditionMaxFilters    = "maxFilters"
	ConditionRequiresSetup = "requiresSetup"
)

var (
	grantNone  = NewGrant(PermissionNone)
	grantRead  = NewGrant(PermissionRead)
	grantWrite = NewGrant(PermissionWrite)
	grantAdmin = NewGrant(PermissionAdmin)
)

// basicTier is also the canonical source of usage-limit shape for
// TrackUsage, so every counted feature action carries a quota here even
// when basic itself is denied.
func basicTier() TierDefinition {
	return TierDefinition{
		Tier: TierBasic,
		Features: FeatureTable{
			FeatureDashboard: {
				ActionView:      grantRead,
				ActionConfigure: grantNone,
			},
			FeatureEvaluations: {
				ActionView:   grantRead,
				ActionCreate: NewQuota(PermissionWrite, 3, WindowMonthly),
				ActionEdit:   grantWrite,
				ActionDelete: grantWrite,
				ActionShare:  grantNone,
				ActionExport: grantNone,
			},
			FeatureReports: {
				ActionView:   grantRead,
				ActionCreate: NewQuota(PermissionWrite, 5, WindowMonthly),
				ActionEdit:   grantNone,
				ActionDelete: grantWrite,
				ActionShare:  grantNone,
				ActionExport: NewQuota(PermissionRead, 2, WindowMonthly),
			},
			FeatureAIAnalysis: {
				ActionView:   grantNone,
				ActionCreate: NewQuota(PermissionNone, 0, WindowMonthly),
			},
			FeatureScenarios: {
				ActionView:   grantNone,
				ActionCreate: NewQuota(PermissionNone, 0, WindowWeekly),
				ActionEdit:   grantNone,
				ActionDelete: grantNone,
			},
			FeatureAnalytics: {
				ActionView:      grantNone,
				ActionExport:    grantNone,
				ActionConfigure: grantNone,
			},
			FeatureAPIAccess: {
				ActionView:   grantNone,
				ActionCreate: NewQuota(PermissionNone, 0, WindowDaily),
			},
			FeatureTeam: {
				ActionView:   grantNone,
				ActionManage: grantNone,
			},
			FeatureAdmin: {
				ActionView:      grantNone,
				ActionConfigure: grantNone,
			},
		},
		Resources: ResourceTable{
			ResourceDocuments: {
				ActionView:   grantRead,
				ActionCreate: grantWrite,
				ActionDelete: grantWrite,
				ActionShare:  grantNone,
			},
			ResourceTemplates: {
				ActionView:   grantRead,
				ActionCreate: grantNone,
				ActionEdit:   grantNone,
			},
			ResourceData: {
				ActionView:   grantRead,
				ActionCreate: grantNone,
				ActionExport: grantNone,
				ActionDelete: grantNone,
			},
			ResourceIntegrations: {
				ActionView:      grantNone,
				ActionConfigure: grantNone,
			},
		},
		Limits: TierLimits{
			MaxReports:        10,
			MaxEvaluations:    5,
			MaxAIAnalyses:     0,
			MaxScenarios:      0,
			StorageLimit:      500,
			APICallsPerMonth:  0,
			ConcurrentUsers:   1,
			DataRetentionDays: 90,
		},
	}
}

func professionalTier() TierDefinition {
	return TierDefinition{
		Tier: TierProfessional,
		Features: FeatureTable{
			FeatureDashboard: {
				ActionView:      grantRead,
				ActionConfigure: grantWrite,
			},
			FeatureEvaluations: {
				ActionView:   grantRead,
				ActionCreate: NewQuota(PermissionWrite, 25, WindowMonthly),
				ActionEdit:   grantWrite,
				ActionDelete: grantWrite,
				ActionShare:  grantWrite,
				ActionExport: grantWrite,
			},
			FeatureReports: {
				ActionView:   grantRead,
				ActionCreate: NewQuota(PermissionWrite, 50, WindowMonthly),
				ActionEdit:   grantWrite,
				ActionDelete: grantWrite,
				ActionShare:  grantWrite,
				ActionExport: grantWrite,
			},
			FeatureAIAnalysis: {
				ActionView:   grantRead,
				ActionCreate: NewQuota(PermissionWrite, 20, WindowMonthly),
			},
			FeatureScenarios: {
				ActionView:   grantRead,
				ActionCreate: NewQuota(PermissionWrite, 10, WindowWeekly),
				ActionEdit:   grantWrite,
				ActionDelete: grantWrite,
			},
			FeatureAnalytics: {
				ActionView:      grantRead.WithCondition(ConditionMaxFilters, 5),
				ActionExport:    grantNone,
				ActionConfigure: grantNone,
			},
			FeatureAPIAccess: {
				ActionView:   grantNone,
				ActionCreate: NewQuota(PermissionNone, 0, WindowDaily),
			},
			FeatureTeam: {
				ActionView:   grantRead,
				ActionManage: grantWrite.WithApproval(),
			},
			FeatureAdmin: {
				ActionView:      grantNone,
				ActionConfigure: grantNone,
			},
		},
		Resources: ResourceTable{
			ResourceDocuments: {
				ActionView:   grantRead,
				ActionCreate: grantWrite,
				ActionDelete: grantWrite,
				ActionShare:  grantWrite,
			},
			ResourceTemplates: {
				ActionView:   grantRead,
				ActionCreate: grantWrite,
				ActionEdit:   grantWrite,
			},
			ResourceData: {
				ActionView:   grantRead,
				ActionCreate: grantWrite,
				ActionExport: grantWrite,
				ActionDelete: grantWrite.WithApproval(),
			},
			ResourceIntegrations: {
				ActionView:      grantRead,
				ActionConfigure: grantNone,
			},
		},
		Limits: TierLimits{
			MaxReports:        100,
			MaxEvaluations:    50,
			MaxAIAnalyses:     100,
			MaxScenarios:      25,
			StorageLimit:      10_240,
			APICallsPerMonth:  10_000,
			ConcurrentUsers:   5,
			DataRetentionDays: 365,
		},
	}
}

func enterpriseTier() TierDefinition {
	return TierDefinition{
		Tier:     TierEnterprise,
		Inherits: []Tier{TierProfessional},
		Features: FeatureTable{
			FeatureDashboard: {
				ActionView:      grantAdmin,
				ActionConfigure: grantAdmin,
			},
			FeatureEvaluations: {
				ActionView:   grantAdmin,
				ActionCreate: grantAdmin,
				ActionEdit:   grantAdmin,
				ActionDelete: grantAdmin,
				ActionShare:  grantAdmin,
				ActionExport: grantAdmin,
			},
			FeatureReports: {
				ActionView:   grantAdmin,
				ActionCreate: grantAdmin,
				ActionEdit:   grantAdmin,
				ActionDelete: grantAdmin,
				ActionShare:  grantAdmin,
				ActionExport: grantAdmin,
			},
			FeatureAIAnalysis: {
				ActionView:   grantAdmin,
				ActionCreate: NewQuota(PermissionWrite, 200, WindowMonthly),
			},
			FeatureScenarios: {
				ActionView:   grantAdmin,
				ActionCreate: grantWrite,
				ActionEdit:   grantAdmin,
				ActionDelete: grantAdmin,
			},
			FeatureAnalytics: {
				ActionView:      grantRead,
				ActionExport:    grantWrite,
				ActionConfigure: grantAdmin,
			},
			FeatureAPIAccess: {
				ActionView:   grantRead,
				ActionCreate: NewQuota(PermissionWrite, 1000, WindowDaily),
			},
			FeatureTeam: {
				ActionView:   grantAdmin,
				ActionManage: grantAdmin,
			},
			FeatureAdmin: {
				ActionView: grantRead,
				ActionConfigure: grantAdmin.
					WithApproval().
					WithCondition(ConditionRequiresSetup, true),
			},
		},
		Resources: ResourceTable{
			ResourceDocuments: {
				ActionView:   grantAdmin,
				ActionCreate: grantAdmin,
				ActionDelete: grantAdmin,
				ActionShare:  grantAdmin,
			},
			ResourceTemplates: {
				ActionView:   grantAdmin,
				ActionCreate: grantAdmin,
				ActionEdit:   grantAdmin,
			},
			ResourceData: {
				ActionView:   grantAdmin,
				ActionCreate: grantAdmin,
				ActionExport: grantAdmin,
				ActionDelete: grantAdmin.WithApproval(),
			},
			ResourceIntegrations: {
				ActionView:      grantAdmin,
				ActionConfigure: grantAdmin.WithCondition(ConditionRequiresSetup, true),
			},
		},
		Limits: TierLimits{
			MaxReports:        Unlimited,
			MaxEvaluations:    Unlimited,
			MaxAIAnalyses:     Unlimited,
			MaxScenarios:      Unlimited,
			StorageLimit:      102_400,
			APICallsPerMonth:  Unlimited,
			ConcurrentUsers:   Unlimited,
			DataRetentionDays: Unlimited,
		},
	}
}

var (
	defaultMatrix     *Matrix
	defaultMatrixOnce sync.Once
)

// DefaultMatrix returns the production permission matrix. Each tier is fully
// redeclared so it can be audited without following inheritance.
func DefaultMatrix() *Matrix {
	defaultMatrixOnce.Do(func() {
		m, err := NewMatrix(basicTier(), professionalTier(), enterpriseTier())
		if err != nil {
			panic("access: default matrix is invalid: " + err.Error())
		}
		defaultMatrix = m
	})
	return defaultMatrix
}
