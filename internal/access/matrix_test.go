// AngelaMos | 2026
// matrix_test.go

package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatrixIsValid(t *testing.T) {
	m, err := NewMatrix(basicTier(), professionalTier(), enterpriseTier())
	require.NoError(t, err)

	for _, tier := range Tiers() {
		_, ok := m.Definition(tier)
		assert.True(t, ok, "tier %s missing", tier)
	}
}

// Every tier redeclares the full catalog, so no check falls through to
// "not defined" against the production matrix.
func TestDefaultMatrixCoversCatalog(t *testing.T) {
	for _, tier := range Tiers() {
		def, ok := DefaultMatrix().Definition(tier)
		require.True(t, ok)

		for _, feature := range Features() {
			assert.NotEmpty(t, def.Features[feature], "%s: feature %s", tier, feature)
		}
		for _, resource := range ResourceTypes() {
			assert.NotEmpty(t, def.Resources[resource], "%s: resource %s", tier, resource)
		}
	}
}

func TestDefaultMatrixLimitsAreMonotonic(t *testing.T) {
	c := NewChecker(DefaultMatrix())

	for _, lt := range LimitTypes() {
		var prev int64
		for i, tier := range Tiers() {
			limits, ok := c.GetTierLimits(tier)
			require.True(t, ok)
			v, _ := limits.Get(lt)
			if i > 0 && !IsUnlimited(v) {
				assert.False(t, IsUnlimited(prev), "%s: %s drops unlimited", lt, tier)
				assert.GreaterOrEqual(t, v, prev, "%s: %s below lower tier", lt, tier)
			}
			prev = v
		}
	}
}

func TestNewMatrixRejectsInvalidDefinitions(t *testing.T) {
	limits := TierLimits{MaxReports: 1}

	tests := []struct {
		name string
		defs []TierDefinition
	}{
		{
			name: "unknown tier",
			defs: []TierDefinition{{Tier: "gold"}},
		},
		{
			name: "duplicate tier",
			defs: []TierDefinition{{Tier: TierBasic}, {Tier: TierBasic}},
		},
		{
			name: "unknown feature",
			defs: []TierDefinition{{
				Tier:     TierBasic,
				Features: FeatureTable{"repots": {ActionView: grantRead}},
			}},
		},
		{
			name: "unknown action",
			defs: []TierDefinition{{
				Tier:     TierBasic,
				Features: FeatureTable{FeatureReports: {"veiw": grantRead}},
			}},
		},
		{
			name: "unknown resource",
			defs: []TierDefinition{{
				Tier:      TierBasic,
				Resources: ResourceTable{"files": {ActionView: grantRead}},
			}},
		},
		{
			name: "invalid window",
			defs: []TierDefinition{{
				Tier: TierBasic,
				Features: FeatureTable{FeatureReports: {
					ActionCreate: NewQuota(PermissionWrite, 1, "hourly"),
				}},
			}},
		},
		{
			name: "negative usage limit",
			defs: []TierDefinition{{
				Tier: TierBasic,
				Features: FeatureTable{FeatureReports: {
					ActionCreate: NewQuota(PermissionWrite, -1, WindowDaily),
				}},
			}},
		},
		{
			name: "limit below unlimited sentinel",
			defs: []TierDefinition{{Tier: TierBasic, Limits: TierLimits{MaxReports: -2}}},
		},
		{
			name: "inherits undeclared tier",
			defs: []TierDefinition{{Tier: TierEnterprise, Inherits: []Tier{TierProfessional}}},
		},
		{
			name: "inherits higher tier",
			defs: []TierDefinition{
				{Tier: TierBasic, Inherits: []Tier{TierProfessional}},
				{Tier: TierProfessional},
			},
		},
		{
			name: "higher tier caps lower",
			defs: []TierDefinition{
				{Tier: TierBasic, Limits: TierLimits{MaxReports: 10}},
				{Tier: TierProfessional, Limits: limits},
			},
		},
		{
			name: "unlimited then capped",
			defs: []TierDefinition{
				{Tier: TierBasic, Limits: TierLimits{MaxReports: Unlimited}},
				{Tier: TierProfessional, Limits: limits},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMatrix(tt.defs...)
			assert.ErrorIs(t, err, ErrInvalidMatrix)
		})
	}
}

func TestMatrixInheritanceMerge(t *testing.T) {
	m, err := NewMatrix(
		TierDefinition{
			Tier: TierBasic,
			Features: FeatureTable{
				FeatureReports: {ActionView: grantRead, ActionExport: grantRead},
			},
		},
		TierDefinition{
			Tier: TierProfessional,
			Features: FeatureTable{
				FeatureReports:   {ActionView: grantWrite},
				FeatureAnalytics: {ActionView: grantRead},
			},
		},
		TierDefinition{
			Tier:     TierEnterprise,
			Inherits: []Tier{TierBasic, TierProfessional},
			Features: FeatureTable{
				FeatureTeam: {ActionManage: grantAdmin},
			},
		},
	)
	require.NoError(t, err)

	c := NewChecker(m)

	g, ok := c.GetFeaturePermission(TierEnterprise, FeatureReports, ActionView)
	require.True(t, ok)
	assert.Equal(t, PermissionWrite, g.Permission, "later parent wins")

	g, ok = c.GetFeaturePermission(TierEnterprise, FeatureReports, ActionExport)
	require.True(t, ok)
	assert.Equal(t, PermissionRead, g.Permission, "inherited from first parent")

	g, ok = c.GetFeaturePermission(TierEnterprise, FeatureAnalytics, ActionView)
	require.True(t, ok)
	assert.Equal(t, PermissionRead, g.Permission)

	g, ok = c.GetFeaturePermission(TierEnterprise, FeatureTeam, ActionManage)
	require.True(t, ok)
	assert.Equal(t, PermissionAdmin, g.Permission)

	_, ok = c.GetFeaturePermission(TierBasic, FeatureAnalytics, ActionView)
	assert.False(t, ok, "inheritance never flows down")
}

func TestMatrixOwnEntriesOverrideInherited(t *testing.T) {
	m := DefaultMatrix()
	c := NewChecker(m)

	g, ok := c.GetFeaturePermission(TierEnterprise, FeatureAIAnalysis, ActionCreate)
	require.True(t, ok)
	require.NotNil(t, g.UsageLimit)
	assert.Equal(t, int64(200), *g.UsageLimit)
}
