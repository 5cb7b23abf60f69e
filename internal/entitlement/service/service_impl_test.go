package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/resumeforge/resumeforge/internal/clock"
	entitlementdomain "github.com/resumeforge/resumeforge/internal/entitlement/domain"
	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
	planrepository "github.com/resumeforge/resumeforge/internal/plan/repository"
	planservice "github.com/resumeforge/resumeforge/internal/plan/service"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	subscriptiondomain "github.com/resumeforge/resumeforge/internal/subscription/domain"
	subscriptionrepository "github.com/resumeforge/resumeforge/internal/subscription/repository"
	"github.com/resumeforge/resumeforge/internal/usercontext"
)

type usageStub struct {
	counts map[string]int64
	calls  []time.Time
}

func (u *usageStub) UsedCount(ctx context.Context, userID snowflake.ID, featureCode string, windowStart time.Time) (int64, error) {
	u.calls = append(u.calls, windowStart)
	return u.counts[featureCode], nil
}

type entitlementFixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	usage *usageStub
	svc   entitlementdomain.Service

	freePlan plandomain.SubscriptionPlan
	proPlan  plandomain.SubscriptionPlan
}

func setupEntitlementTest(t *testing.T) *entitlementFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&plandomain.SubscriptionPlan{},
		&plandomain.PlanPricing{},
		&plandomain.PlanFeature{},
		&subscriptiondomain.UserSubscription{},
	))

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	f := &entitlementFixture{
		db:    db,
		node:  node,
		clock: clock.NewFakeClock(time.Date(2026, 4, 20, 9, 30, 0, 0, time.UTC)),
		usage: &usageStub{counts: map[string]int64{}},
	}

	f.freePlan = f.seedPlan(t, "free", true, "0", []plandomain.PlanFeature{
		{Code: "resumes", Name: "Resumes", LimitType: plandomain.LimitCount, LimitValue: 2, ResetFrequency: plandomain.ResetMonthly},
		{Code: "pdf_export", Name: "PDF export", LimitType: plandomain.LimitBoolean, LimitValue: 0},
	})
	f.proPlan = f.seedPlan(t, "pro-monthly", false, "10.00", []plandomain.PlanFeature{
		{Code: "resumes", Name: "Resumes", LimitType: plandomain.LimitUnlimited},
		{Code: "ai_suggestions", Name: "AI suggestions", LimitType: plandomain.LimitCount, LimitValue: 100, ResetFrequency: plandomain.ResetMonthly},
		{Code: "pdf_export", Name: "PDF export", LimitType: plandomain.LimitBoolean, LimitValue: 1},
	})

	log := zap.NewNop()
	f.svc = NewService(ServiceParam{
		DB:    db,
		Log:   log,
		Clock: f.clock,
		Plansvc: planservice.NewService(planservice.ServiceParam{
			DB:   db,
			Log:  log,
			Repo: planrepository.Provide(),
		}),
		SubRepo: subscriptionrepository.Provide(),
		Usage:   f.usage,
	})
	return f
}

func (f *entitlementFixture) seedPlan(t *testing.T, code string, freemium bool, amount string, features []plandomain.PlanFeature) plandomain.SubscriptionPlan {
	t.Helper()
	plan := plandomain.SubscriptionPlan{
		ID:           f.node.Generate(),
		Code:         code,
		Name:         code,
		BillingCycle: plandomain.CycleMonthly,
		Freemium:     freemium,
		Active:       true,
	}
	require.NoError(t, f.db.Create(&plan).Error)
	require.NoError(t, f.db.Create(&plandomain.PlanPricing{
		ID:       f.node.Generate(),
		PlanID:   plan.ID,
		Region:   regiondomain.RegionGlobal,
		Currency: regiondomain.CurrencyUSD,
		Amount:   decimal.RequireFromString(amount),
	}).Error)
	for i := range features {
		features[i].ID = f.node.Generate()
		features[i].PlanID = plan.ID
		if features[i].ResetFrequency == "" {
			features[i].ResetFrequency = plandomain.ResetNever
		}
		require.NoError(t, f.db.Create(&features[i]).Error)
	}
	return plan
}

func (f *entitlementFixture) seedSubscription(t *testing.T, userID snowflake.ID, plan plandomain.SubscriptionPlan, status subscriptiondomain.SubscriptionStatus, startAt time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&subscriptiondomain.UserSubscription{
		ID:        f.node.Generate(),
		UserID:    userID,
		PlanID:    plan.ID,
		Status:    status,
		StartAt:   startAt,
		EndAt:     plan.BillingCycle.PeriodEnd(startAt),
		AutoRenew: true,
		Version:   1,
	}).Error)
}

func (f *entitlementFixture) userCtx(userID snowflake.ID) context.Context {
	return usercontext.WithUserID(context.Background(), userID)
}

func TestResolveAll_SubscribedPlanGrants(t *testing.T) {
	f := setupEntitlementTest(t)
	userID := f.node.Generate()
	f.seedSubscription(t, userID, f.proPlan, subscriptiondomain.StatusActive, f.clock.Now().AddDate(0, 0, -5))
	f.usage.counts["ai_suggestions"] = 40

	entitlements, err := f.svc.ResolveAll(f.userCtx(userID))
	require.NoError(t, err)
	require.Len(t, entitlements, 3)

	byCode := map[string]entitlementdomain.Entitlement{}
	for _, ent := range entitlements {
		byCode[ent.Code] = ent
	}

	unlimited := byCode["resumes"]
	assert.Equal(t, plandomain.LimitUnlimited, unlimited.LimitType)
	assert.True(t, unlimited.Allowed())

	counted := byCode["ai_suggestions"]
	assert.EqualValues(t, 100, counted.Limit)
	assert.EqualValues(t, 40, counted.Used)
	assert.EqualValues(t, 60, counted.Remaining)
	assert.True(t, counted.Allowed())

	boolean := byCode["pdf_export"]
	assert.Equal(t, plandomain.LimitBoolean, boolean.LimitType)
	assert.True(t, boolean.Allowed())
}

func TestResolveAll_FreemiumFallback(t *testing.T) {
	f := setupEntitlementTest(t)
	userID := f.node.Generate()

	// No subscription at all: freemium grants apply.
	entitlements, err := f.svc.ResolveAll(f.userCtx(userID))
	require.NoError(t, err)
	require.Len(t, entitlements, 2)

	// An expired subscription grants the same.
	expiredUser := f.node.Generate()
	f.seedSubscription(t, expiredUser, f.proPlan, subscriptiondomain.StatusExpired, f.clock.Now().AddDate(0, -2, 0))
	entitlements, err = f.svc.ResolveAll(f.userCtx(expiredUser))
	require.NoError(t, err)
	require.Len(t, entitlements, 2)
	for _, ent := range entitlements {
		if ent.Code == "pdf_export" {
			assert.False(t, ent.Allowed(), "freemium plan does not grant pdf export")
		}
	}
}

func TestResolveAll_GraceKeepsPaidGrants(t *testing.T) {
	f := setupEntitlementTest(t)
	userID := f.node.Generate()
	graceUntil := f.clock.Now().AddDate(0, 0, 3)
	require.NoError(t, f.db.Create(&subscriptiondomain.UserSubscription{
		ID:         f.node.Generate(),
		UserID:     userID,
		PlanID:     f.proPlan.ID,
		Status:     subscriptiondomain.StatusGracePeriod,
		StartAt:    f.clock.Now().AddDate(0, -1, 0),
		EndAt:      f.clock.Now().AddDate(0, 0, -2),
		GraceUntil: &graceUntil,
		Version:    1,
	}).Error)

	entitlements, err := f.svc.ResolveAll(f.userCtx(userID))
	require.NoError(t, err)
	assert.Len(t, entitlements, 3)
}

func TestCheck(t *testing.T) {
	f := setupEntitlementTest(t)
	userID := f.node.Generate()
	f.seedSubscription(t, userID, f.proPlan, subscriptiondomain.StatusActive, f.clock.Now().AddDate(0, 0, -5))
	f.usage.counts["ai_suggestions"] = 100

	ent, err := f.svc.Check(f.userCtx(userID), "ai_suggestions")
	require.NoError(t, err)
	assert.EqualValues(t, 0, ent.Remaining)
	assert.False(t, ent.Allowed())

	_, err = f.svc.Check(f.userCtx(userID), "premium_templates")
	assert.ErrorIs(t, err, entitlementdomain.ErrFeatureNotEntitled)
}

func TestCheck_RequiresUser(t *testing.T) {
	f := setupEntitlementTest(t)

	_, err := f.svc.Check(context.Background(), "resumes")
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidUser)
}

func TestWindowStart(t *testing.T) {
	anchor := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 4, 20, 9, 30, 0, 0, time.UTC)

	// Monthly windows advance from the subscription anchor, not the
	// calendar month.
	assert.Equal(t, time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		windowStart(plandomain.ResetMonthly, anchor, now))
	assert.Equal(t, anchor,
		windowStart(plandomain.ResetYearly, anchor, now))
	assert.Equal(t, time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC),
		windowStart(plandomain.ResetDaily, anchor, now))
	// 2026-04-20 is a Monday.
	assert.Equal(t, time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC),
		windowStart(plandomain.ResetWeekly, anchor, now))
	assert.Equal(t, anchor,
		windowStart(plandomain.ResetNever, anchor, now))
}

func TestResolveAll_PassesWindowStartToUsageSource(t *testing.T) {
	f := setupEntitlementTest(t)
	userID := f.node.Generate()
	start := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	f.seedSubscription(t, userID, f.proPlan, subscriptiondomain.StatusActive, start)

	_, err := f.svc.ResolveAll(f.userCtx(userID))
	require.NoError(t, err)

	// Only the counted feature consults usage, with the anchored window.
	require.Len(t, f.usage.calls, 1)
	assert.Equal(t, time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), f.usage.calls[0])
}
