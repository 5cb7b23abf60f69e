package scheduler

import (
	"context"
	"errors"
	"net/http"
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
	"github.com/resumeforge/resumeforge/internal/config"
	obsmetrics "github.com/resumeforge/resumeforge/internal/observability/metrics"
	paymentdomain "github.com/resumeforge/resumeforge/internal/payment/domain"
	paymentrepository "github.com/resumeforge/resumeforge/internal/payment/repository"
	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
	planrepository "github.com/resumeforge/resumeforge/internal/plan/repository"
	planservice "github.com/resumeforge/resumeforge/internal/plan/service"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	regionservice "github.com/resumeforge/resumeforge/internal/region/service"
	subscriptiondomain "github.com/resumeforge/resumeforge/internal/subscription/domain"
	subscriptionrepository "github.com/resumeforge/resumeforge/internal/subscription/repository"
	subscriptionservice "github.com/resumeforge/resumeforge/internal/subscription/service"
)

type renewalStub struct {
	chargeErr   error
	chargeCalls int
}

func (g *renewalStub) CreateCheckoutSession(ctx context.Context, req paymentdomain.CreateCheckoutRequest) (paymentdomain.ProviderSession, error) {
	return paymentdomain.ProviderSession{
		ProviderSessionID: "prov_" + req.SessionID,
		CheckoutURL:       "https://pay.test/checkout/" + req.SessionID,
	}, nil
}

func (g *renewalStub) ChargeRenewal(ctx context.Context, req paymentdomain.ChargeRenewalRequest) error {
	g.chargeCalls++
	return g.chargeErr
}

func (g *renewalStub) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return nil
}

func (g *renewalStub) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	return nil, paymentdomain.ErrInvalidEvent
}

type sweepFixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	gateway *renewalStub
	subsvc  subscriptiondomain.Service
	repo    subscriptiondomain.Repository

	freePlan plandomain.SubscriptionPlan
	paidPlan plandomain.SubscriptionPlan
}

func setupSweepTest(t *testing.T) *sweepFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&plandomain.SubscriptionPlan{},
		&plandomain.PlanPricing{},
		&subscriptiondomain.UserSubscription{},
		&paymentdomain.CheckoutSession{},
	))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	f := &sweepFixture{
		db:      db,
		node:    node,
		clock:   clock.NewFakeClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)),
		gateway: &renewalStub{},
		repo:    subscriptionrepository.Provide(),
	}
	f.freePlan = f.seedPlan(t, "free", true, "0")
	f.paidPlan = f.seedPlan(t, "pro-monthly", false, "10.00")

	log := zap.NewNop()
	f.subsvc = subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: f.clock,
		Repo:  f.repo,
		Plansvc: planservice.NewService(planservice.ServiceParam{
			DB:   db,
			Log:  log,
			Repo: planrepository.Provide(),
		}),
		Regions: regionservice.NewResolver(regionservice.ResolverParam{
			Log: log,
			Cfg: config.Config{},
		}),
		PaymentRepo: paymentrepository.Provide(),
		Gateway:     f.gateway,
	})
	return f
}

func (f *sweepFixture) newScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	sched, err := New(Params{
		DB:               f.db,
		Log:              zap.NewNop(),
		GenID:            f.node,
		Clock:            f.clock,
		SubscriptionSvc:  f.subsvc,
		SubscriptionRepo: f.repo,
		Config:           cfg,
	})
	require.NoError(t, err)
	return sched
}

func (f *sweepFixture) seedPlan(t *testing.T, code string, freemium bool, amount string) plandomain.SubscriptionPlan {
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
	return plan
}

func (f *sweepFixture) seedSubscription(t *testing.T, plan plandomain.SubscriptionPlan, status subscriptiondomain.SubscriptionStatus, endAt time.Time, mutate func(*subscriptiondomain.UserSubscription)) subscriptiondomain.UserSubscription {
	t.Helper()
	sub := subscriptiondomain.UserSubscription{
		ID:        f.node.Generate(),
		UserID:    f.node.Generate(),
		PlanID:    plan.ID,
		Status:    status,
		StartAt:   endAt.AddDate(0, -1, 0),
		EndAt:     endAt,
		AutoRenew: true,
		Version:   1,
	}
	if mutate != nil {
		mutate(&sub)
	}
	require.NoError(t, f.db.Create(&sub).Error)
	return sub
}

func (f *sweepFixture) reload(t *testing.T, id snowflake.ID) subscriptiondomain.UserSubscription {
	t.Helper()
	var sub subscriptiondomain.UserSubscription
	require.NoError(t, f.db.Where("id = ?", id).First(&sub).Error)
	return sub
}

func TestRunOnce_ProcessesDueSubscriptions(t *testing.T) {
	f := setupSweepTest(t)
	due := f.clock.Now().Add(-time.Hour)

	renewing := f.seedSubscription(t, f.paidPlan, subscriptiondomain.StatusActive, due, nil)
	expiring := f.seedSubscription(t, f.paidPlan, subscriptiondomain.StatusCancelled, due, nil)
	future := f.seedSubscription(t, f.paidPlan, subscriptiondomain.StatusActive, f.clock.Now().AddDate(0, 0, 10), nil)

	sched := f.newScheduler(t, Config{})
	require.NoError(t, sched.RunOnce(context.Background()))

	assert.Equal(t, subscriptiondomain.StatusActive, f.reload(t, renewing.ID).Status)
	assert.Equal(t, due.AddDate(0, 1, 0), f.reload(t, renewing.ID).EndAt)
	assert.Equal(t, subscriptiondomain.StatusExpired, f.reload(t, expiring.ID).Status)
	assert.Equal(t, 1, f.gateway.chargeCalls)

	untouched := f.reload(t, future.ID)
	assert.Equal(t, subscriptiondomain.StatusActive, untouched.Status)
	assert.EqualValues(t, 1, untouched.Version)
}

func TestCycleSweep_OneFailureDoesNotBlockTheBatch(t *testing.T) {
	f := setupSweepTest(t)
	due := f.clock.Now().Add(-time.Hour)

	// The paid renewal hits a gateway outage; the free renewal must still
	// land in the same run.
	f.gateway.chargeErr = errors.New("gateway timeout")
	failing := f.seedSubscription(t, f.paidPlan, subscriptiondomain.StatusActive, due, nil)
	succeeding := f.seedSubscription(t, f.freePlan, subscriptiondomain.StatusActive, due.Add(time.Minute), nil)

	sched := f.newScheduler(t, Config{})
	err := sched.RunOnce(context.Background())
	require.Error(t, err)

	failed := f.reload(t, failing.ID)
	assert.Equal(t, subscriptiondomain.StatusActive, failed.Status)
	assert.Equal(t, due, failed.EndAt)

	renewed := f.reload(t, succeeding.ID)
	assert.Equal(t, subscriptiondomain.StatusActive, renewed.Status)
	assert.Equal(t, succeeding.EndAt.AddDate(0, 1, 0), renewed.EndAt)
}

func TestGraceSweep_ExpiresLapsedGraceWindows(t *testing.T) {
	f := setupSweepTest(t)
	f.gateway.chargeErr = paymentdomain.ErrChargeDeclined
	lapsed := f.clock.Now().Add(-time.Hour)

	graced := f.seedSubscription(t, f.paidPlan, subscriptiondomain.StatusGracePeriod,
		f.clock.Now().AddDate(0, 0, -7), func(sub *subscriptiondomain.UserSubscription) {
			sub.GraceUntil = &lapsed
		})

	sched := f.newScheduler(t, Config{})
	require.NoError(t, sched.RunOnce(context.Background()))

	after := f.reload(t, graced.ID)
	assert.Equal(t, subscriptiondomain.StatusExpired, after.Status)
	assert.Nil(t, after.GraceUntil)
}

func TestRunOnce_HonorsEnabledJobs(t *testing.T) {
	f := setupSweepTest(t)
	lapsed := f.clock.Now().Add(-time.Hour)
	graced := f.seedSubscription(t, f.paidPlan, subscriptiondomain.StatusGracePeriod,
		f.clock.Now().AddDate(0, 0, -7), func(sub *subscriptiondomain.UserSubscription) {
			sub.GraceUntil = &lapsed
		})

	sched := f.newScheduler(t, Config{EnabledJobs: []string{obsmetrics.JobCycleSweep}})
	require.NoError(t, sched.RunOnce(context.Background()))

	// The grace sweep is disabled on this instance, so the row stays put.
	assert.Equal(t, subscriptiondomain.StatusGracePeriod, f.reload(t, graced.ID).Status)
	assert.True(t, sched.isJobEnabled(obsmetrics.JobCycleSweep))
	assert.False(t, sched.isJobEnabled(obsmetrics.JobGraceSweep))
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)

	tuned := Config{BatchSize: 25}.withDefaults()
	assert.Equal(t, 25, tuned.BatchSize)
	assert.Equal(t, time.Minute, tuned.RunInterval)
}
