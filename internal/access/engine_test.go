// AngelaMos | 2026
// engine_test.go

package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: make(map[string]int64)}
}

func (s *fakeStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.counts[key], nil
}

func (s *fakeStore) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.counts[key]++
	return s.counts[key], nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, key)
	return s.err
}

func (s *fakeStore) Ping(context.Context) error {
	return s.err
}

type recordingObserver struct {
	mu        sync.Mutex
	decisions []AccessResult
	usage     []int64
}

func (o *recordingObserver) ObserveDecision(_ DecisionKind, _, _ string, r AccessResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, r)
}

func (o *recordingObserver) ObserveUsage(_ Feature, _ Action, count int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.usage = append(o.usage, count)
}

var testNow = time.Date(2026, time.March, 18, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, store CounterStore, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	e, err := NewEngine(DefaultMatrix(), store, opts...)
	require.NoError(t, err)
	return e
}

func usageFor(userID string, feature Feature, action Action) UsageContext {
	return UsageContext{
		UserID:    userID,
		Feature:   feature,
		Action:    action,
		Timestamp: testNow,
	}
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(nil, newFakeStore())
	assert.Error(t, err)

	_, err = NewEngine(DefaultMatrix(), nil)
	assert.Error(t, err)

	m, err := NewMatrix(TierDefinition{
		Tier: TierBasic,
		Features: FeatureTable{
			FeatureAnalytics: {ActionView: grantRead.WithCondition("maxWidgets", 3)},
		},
	})
	require.NoError(t, err)

	_, err = NewEngine(m, newFakeStore())
	assert.ErrorIs(t, err, ErrUnknownCondition)

	_, err = NewEngine(m, newFakeStore(), WithCondition("maxWidgets",
		func(any, *UsageContext) (ConditionOutcome, error) {
			return ConditionOutcome{Satisfied: true}, nil
		},
	))
	assert.NoError(t, err)
}

func TestCheckPermissionPlainGrant(t *testing.T) {
	e := newTestEngine(t, newFakeStore())

	r := e.CheckPermission(context.Background(), TierBasic, FeatureReports, ActionView, nil)
	assert.True(t, r.Allowed)
	assert.Equal(t, PermissionRead, r.Permission)
	assert.Empty(t, r.Conditions)
	assert.Empty(t, r.Reason)
}

func TestCheckPermissionNotDefined(t *testing.T) {
	e := newTestEngine(t, newFakeStore())

	r := e.CheckPermission(context.Background(), TierBasic, FeatureDashboard, ActionDelete, nil)
	assert.False(t, r.Allowed)
	assert.Equal(t, PermissionNone, r.Permission)
	assert.Equal(t, "Permission not defined for dashboard:delete on basic tier", r.Reason)
	assert.Empty(t, r.UpgradeRequired)
	assert.NoError(t, r.Err)
}

func TestCheckPermissionUnknownTierFailsClosed(t *testing.T) {
	e := newTestEngine(t, newFakeStore())

	r := e.CheckPermission(context.Background(), Tier("gold"), FeatureReports, ActionView, nil)
	assert.False(t, r.Allowed)
	assert.Contains(t, r.Reason, "not defined")
}

func TestCheckPermissionNoneSuggestsUpgrade(t *testing.T) {
	e := newTestEngine(t, newFakeStore())

	r := e.CheckPermission(context.Background(), TierBasic, FeatureAnalytics, ActionView, nil)
	assert.False(t, r.Allowed)
	assert.Equal(t, TierProfessional, r.UpgradeRequired)

	r = e.CheckPermission(context.Background(), TierBasic, FeatureAIAnalysis, ActionCreate, nil)
	assert.False(t, r.Allowed, "conditional grant with base none denies")
	assert.Equal(t, TierProfessional, r.UpgradeRequired)
	assert.Empty(t, r.Conditions)
}

func TestCheckPermissionHigherTierAllowsSameAction(t *testing.T) {
	e := newTestEngine(t, newFakeStore())
	ctx := context.Background()

	for _, tier := range Tiers() {
		for _, feature := range Features() {
			for _, action := range Actions() {
				if !e.CheckPermission(ctx, tier, feature, action, nil).Allowed {
					continue
				}
				for _, higher := range tiersAbove(tier) {
					r := e.CheckPermission(ctx, higher, feature, action, nil)
					assert.True(t, r.Allowed, "%s allows %s:%s but %s does not", tier, feature, action, higher)
				}
			}
		}
	}
}

func TestUsageLimitExceeded(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(t, store)
	ctx := context.Background()
	uc := usageFor("u1", FeatureReports, ActionCreate)

	for range 4 {
		require.NoError(t, e.TrackUsage(ctx, uc))
	}

	r := e.CheckPermission(ctx, TierBasic, FeatureReports, ActionCreate, &uc)
	assert.True(t, r.Allowed)
	assert.Equal(t, PermissionWrite, r.Permission)

	require.NoError(t, e.TrackUsage(ctx, uc))

	r = e.CheckPermission(ctx, TierBasic, FeatureReports, ActionCreate, &uc)
	assert.False(t, r.Allowed)
	assert.Contains(t, r.Reason, "Usage limit exceeded")
	assert.Equal(t, TierProfessional, r.UpgradeRequired)
	require.Len(t, r.Conditions, 1)
	assert.Equal(t, ConditionUsageLimit, r.Conditions[0].Type)
	assert.True(t, r.Conditions[0].Blocking)
	assert.Equal(t, UsageLimitValue{Limit: 5, Current: 5, Window: WindowMonthly}, r.Conditions[0].Value)

	r = e.CheckPermission(ctx, TierProfessional, FeatureReports, ActionCreate, &uc)
	assert.True(t, r.Allowed, "professional quota is larger")

	other := usageFor("u2", FeatureReports, ActionCreate)
	r = e.CheckPermission(ctx, TierBasic, FeatureReports, ActionCreate, &other)
	assert.True(t, r.Allowed, "counters are per user")
}

func TestUsageLimitIgnoredWithoutContext(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(t, store)
	ctx := context.Background()
	uc := usageFor("u1", FeatureReports, ActionCreate)

	for range 5 {
		require.NoError(t, e.TrackUsage(ctx, uc))
	}

	r := e.CheckPermission(ctx, TierBasic, FeatureReports, ActionCreate, nil)
	assert.True(t, r.Allowed)
}

func TestUsageResetsOnWindowRollover(t *testing.T) {
	now := testNow
	store := newFakeStore()
	e, err := NewEngine(DefaultMatrix(), store, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := context.Background()

	uc := UsageContext{UserID: "u1", Feature: FeatureReports, Action: ActionCreate}
	for range 5 {
		require.NoError(t, e.TrackUsage(ctx, uc))
	}
	assert.False(t, e.CheckPermission(ctx, TierBasic, FeatureReports, ActionCreate, &uc).Allowed)

	now = time.Date(2026, time.April, 1, 0, 0, 1, 0, time.UTC)
	assert.True(t, e.CheckPermission(ctx, TierBasic, FeatureReports, ActionCreate, &uc).Allowed)

	used, err := e.GetCurrentUsage(ctx, "u1", FeatureReports, ActionCreate, WindowMonthly)
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestTrackUsageConcurrent(t *testing.T) {
	e := newTestEngine(t, newFakeStore())
	ctx := context.Background()
	uc := usageFor("u1", FeatureEvaluations, ActionCreate)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.TrackUsage(ctx, uc))
		}()
	}
	wg.Wait()

	used, err := e.GetCurrentUsage(ctx, "u1", FeatureEvaluations, ActionCreate, WindowMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(50), used)
}

func TestTrackUsageValidation(t *testing.T) {
	e := newTestEngine(t, newFakeStore())
	ctx := context.Background()

	err := e.TrackUsage(ctx, UsageContext{Feature: FeatureReports, Action: ActionCreate})
	assert.ErrorIs(t, err, ErrInvalidUsageContext)

	err = e.TrackUsage(ctx, UsageContext{UserID: "u1", Action: ActionCreate})
	assert.ErrorIs(t, err, ErrInvalidUsageContext)

	err = e.TrackUsage(ctx, UsageContext{UserID: "u1", Feature: FeatureReports})
	assert.ErrorIs(t, err, ErrInvalidUsageContext)
}

func TestTrackUsageWithoutQuotaIsNoop(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(t, store)

	require.NoError(t, e.TrackUsage(context.Background(), usageFor("u1", FeatureReports, ActionView)))
	require.NoError(t, e.TrackUsage(context.Background(), usageFor("u1", FeatureDashboard, ActionDelete)))
	assert.Empty(t, store.counts)
}

func TestTrackUsageStoreError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	e := newTestEngine(t, store)

	err := e.TrackUsage(context.Background(), usageFor("u1", FeatureReports, ActionCreate))
	assert.ErrorContains(t, err, "connection refused")
}

func TestStoreFailureDeniesCheck(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	e := newTestEngine(t, store)
	uc := usageFor("u1", FeatureReports, ActionCreate)

	r := e.CheckPermission(context.Background(), TierBasic, FeatureReports, ActionCreate, &uc)
	assert.False(t, r.Allowed)
	assert.Equal(t, PermissionNone, r.Permission)
	assert.Error(t, r.Err)
	assert.Contains(t, r.Reason, "Error checking permission: ")
}

func TestPanickingConditionDenies(t *testing.T) {
	e := newTestEngine(t, newFakeStore(), WithCondition(ConditionMaxFilters,
		func(any, *UsageContext) (ConditionOutcome, error) {
			panic("boom")
		},
	))

	r := e.CheckPermission(context.Background(), TierProfessional, FeatureAnalytics, ActionView, nil)
	assert.False(t, r.Allowed)
	assert.Error(t, r.Err)
	assert.Contains(t, r.Reason, "boom")
}

func TestApprovalIsNonBlocking(t *testing.T) {
	e := newTestEngine(t, newFakeStore())

	r := e.CheckPermission(context.Background(), TierProfessional, FeatureTeam, ActionManage, nil)
	assert.True(t, r.Allowed)
	assert.Equal(t, PermissionWrite, r.Permission)
	require.Len(t, r.Conditions, 1)
	assert.Equal(t, ConditionApprovalRequired, r.Conditions[0].Type)
	assert.False(t, r.Conditions[0].Blocking)
	assert.True(t, r.HasCondition(ConditionApprovalRequired))
}

func TestCheckPermissionMaxFilters(t *testing.T) {
	e := newTestEngine(t, newFakeStore())
	ctx := context.Background()

	uc := usageFor("u1", FeatureAnalytics, ActionView)
	uc.Metadata = map[string]any{"filterCount": 6}

	r := e.CheckPermission(ctx, TierProfessional, FeatureAnalytics, ActionView, &uc)
	assert.False(t, r.Allowed)
	assert.Contains(t, r.Reason, "Filter limit exceeded")
	assert.Equal(t, TierEnterprise, r.UpgradeRequired)
	require.Len(t, r.Conditions, 1)
	assert.Equal(t, ConditionCustom, r.Conditions[0].Type)
	assert.Equal(t, CustomConditionValue{
		Name:     ConditionMaxFilters,
		Blocking: true,
		Declared: 5,
		Observed: int64(6),
	}, r.Conditions[0].Value)

	uc.Metadata["filterCount"] = 3
	r = e.CheckPermission(ctx, TierProfessional, FeatureAnalytics, ActionView, &uc)
	assert.True(t, r.Allowed)
	assert.Empty(t, r.Conditions)

	uc.Metadata["filterCount"] = 1e19
	r = e.CheckPermission(ctx, TierProfessional, FeatureAnalytics, ActionView, &uc)
	assert.False(t, r.Allowed, "out of range counts must not wrap below the cap")
	assert.Contains(t, r.Reason, "Filter limit exceeded")
}

func TestCheckResourcePermissionRequiresSetup(t *testing.T) {
	e := newTestEngine(t, newFakeStore())
	ctx := context.Background()

	uc := usageFor("u1", "", ActionConfigure)
	r := e.CheckResourcePermission(ctx, TierEnterprise, ResourceIntegrations, ActionConfigure, &uc)
	assert.False(t, r.Allowed)
	assert.Contains(t, r.Reason, "Setup must be completed")
	assert.Empty(t, r.UpgradeRequired)

	uc.Metadata = map[string]any{"isSetupComplete": true}
	r = e.CheckResourcePermission(ctx, TierEnterprise, ResourceIntegrations, ActionConfigure, &uc)
	assert.True(t, r.Allowed)
	assert.Equal(t, PermissionAdmin, r.Permission)
}

func TestBlockingReasonsAreJoined(t *testing.T) {
	e := newTestEngine(t, newFakeStore())

	r := e.CheckPermission(context.Background(), TierEnterprise, FeatureAdmin, ActionConfigure, nil)
	assert.False(t, r.Allowed)
	assert.Equal(t, "Setup must be completed before using this feature", r.Reason)
	assert.True(t, r.HasCondition(ConditionApprovalRequired))
	assert.True(t, r.HasCondition(ConditionCustom))
}

func TestTimeRestriction(t *testing.T) {
	e := newTestEngine(t, newFakeStore())

	uc := usageFor("u1", FeatureReports, ActionCreate)
	uc.Timestamp = testNow.AddDate(0, -2, 0)

	r := e.CheckPermission(context.Background(), TierBasic, FeatureReports, ActionCreate, &uc)
	assert.False(t, r.Allowed)
	assert.True(t, r.HasCondition(ConditionTimeRestriction))
}

func TestCheckResourcePermission(t *testing.T) {
	e := newTestEngine(t, newFakeStore())
	ctx := context.Background()

	r := e.CheckResourcePermission(ctx, TierBasic, ResourceDocuments, ActionShare, nil)
	assert.False(t, r.Allowed)
	assert.Equal(t, TierProfessional, r.UpgradeRequired)

	r = e.CheckResourcePermission(ctx, TierProfessional, ResourceData, ActionDelete, nil)
	assert.True(t, r.Allowed)
	assert.True(t, r.HasCondition(ConditionApprovalRequired))

	r = e.CheckResourcePermission(ctx, TierEnterprise, ResourceTemplates, ActionEdit, nil)
	assert.True(t, r.Allowed)
	assert.Equal(t, PermissionAdmin, r.Permission)
}

func TestCheckTierLimits(t *testing.T) {
	e := newTestEngine(t, newFakeStore())

	r := e.CheckTierLimits(TierEnterprise, LimitMaxReports, 1_000_000)
	assert.True(t, r.Allowed)
	assert.Equal(t, PermissionAdmin, r.Permission)

	r = e.CheckTierLimits(TierBasic, LimitMaxReports, 9)
	assert.True(t, r.Allowed)
	assert.Equal(t, PermissionWrite, r.Permission)

	r = e.CheckTierLimits(TierBasic, LimitMaxReports, 10)
	assert.False(t, r.Allowed)
	assert.Equal(t, TierProfessional, r.UpgradeRequired)
	assert.Contains(t, r.Reason, "maxReports")

	r = e.CheckTierLimits(TierBasic, LimitMaxAIAnalyses, 0)
	assert.False(t, r.Allowed)
	assert.Equal(t, TierProfessional, r.UpgradeRequired)

	r = e.CheckTierLimits(TierBasic, "maxWidgets", 0)
	assert.False(t, r.Allowed)

	r = e.CheckTierLimits("gold", LimitMaxReports, 0)
	assert.False(t, r.Allowed)
}

func TestResetUsage(t *testing.T) {
	e := newTestEngine(t, newFakeStore())
	ctx := context.Background()
	uc := usageFor("u1", FeatureReports, ActionCreate)

	for range 3 {
		require.NoError(t, e.TrackUsage(ctx, uc))
	}

	require.NoError(t, e.ResetUsage(ctx, "u1", FeatureReports, ActionCreate, WindowMonthly))

	used, err := e.GetCurrentUsage(ctx, "u1", FeatureReports, ActionCreate, WindowMonthly)
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestUsageSnapshot(t *testing.T) {
	e := newTestEngine(t, newFakeStore())
	ctx := context.Background()
	uc := usageFor("u1", FeatureReports, ActionCreate)

	require.NoError(t, e.TrackUsage(ctx, uc))
	require.NoError(t, e.TrackUsage(ctx, uc))

	meters, err := e.UsageSnapshot(ctx, TierBasic, "u1")
	require.NoError(t, err)

	assert.Equal(t, []UsageMeter{
		{Feature: FeatureEvaluations, Action: ActionCreate, Window: WindowMonthly, Used: 0, Limit: 3, Remaining: 3},
		{Feature: FeatureReports, Action: ActionCreate, Window: WindowMonthly, Used: 2, Limit: 5, Remaining: 3},
		{Feature: FeatureReports, Action: ActionExport, Window: WindowMonthly, Used: 0, Limit: 2, Remaining: 2},
	}, meters)
}

func TestGetAvailableFeatures(t *testing.T) {
	e := newTestEngine(t, newFakeStore())

	assert.Equal(t,
		[]Feature{FeatureDashboard, FeatureEvaluations, FeatureReports},
		e.GetAvailableFeatures(TierBasic),
	)
	assert.Len(t, e.GetAvailableFeatures(TierEnterprise), len(Features()))
	assert.Empty(t, e.GetAvailableFeatures("gold"))
}

func TestGetUpgradeRecommendations(t *testing.T) {
	e := newTestEngine(t, newFakeStore())

	assert.Nil(t, e.GetUpgradeRecommendations(TierBasic, FeatureReports, ActionView))
	assert.Nil(t, e.GetUpgradeRecommendations(TierEnterprise, FeatureDashboard, ActionDelete))

	rec := e.GetUpgradeRecommendations(TierBasic, FeatureAIAnalysis, ActionCreate)
	require.NotNil(t, rec)
	assert.Equal(t, TierProfessional, rec.Tier)
	assert.Contains(t, rec.Benefits, "maxReports increases from 10 to 100")
	assert.Contains(t, rec.Benefits, "Access to ai_analysis: view, create")

	rec = e.GetUpgradeRecommendations(TierProfessional, FeatureAnalytics, ActionExport)
	require.NotNil(t, rec)
	assert.Equal(t, TierEnterprise, rec.Tier)
	assert.Contains(t, rec.Benefits, "Unlimited maxReports")
	assert.Contains(t, rec.Benefits, "Access to admin: view, configure")
}

func TestObserverReceivesEvents(t *testing.T) {
	obs := &recordingObserver{}
	e := newTestEngine(t, newFakeStore(), WithObserver(obs))
	ctx := context.Background()

	e.CheckPermission(ctx, TierBasic, FeatureReports, ActionView, nil)
	e.CheckTierLimits(TierBasic, LimitMaxReports, 1)
	require.NoError(t, e.TrackUsage(ctx, usageFor("u1", FeatureReports, ActionCreate)))

	assert.Len(t, obs.decisions, 2)
	assert.Equal(t, []int64{1}, obs.usage)
}
