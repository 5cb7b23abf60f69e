package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/resumeforge/resumeforge/internal/clock"
	entitlementdomain "github.com/resumeforge/resumeforge/internal/entitlement/domain"
	obsmetrics "github.com/resumeforge/resumeforge/internal/observability/metrics"
	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	subscriptiondomain "github.com/resumeforge/resumeforge/internal/subscription/domain"
	"github.com/resumeforge/resumeforge/internal/usercontext"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock

	plansvc plandomain.Service
	subRepo subscriptiondomain.Repository
	usage   entitlementdomain.UsageSource
	metrics *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock

	Plansvc plandomain.Service
	SubRepo subscriptiondomain.Repository
	Usage   entitlementdomain.UsageSource `optional:"true"`
	Metrics *obsmetrics.Metrics           `optional:"true"`
}

func NewService(p ServiceParam) entitlementdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("entitlement.service"),
		clock: p.Clock,

		plansvc: p.Plansvc,
		subRepo: p.SubRepo,
		usage:   p.Usage,
		metrics: p.Metrics,
	}
}

func (s *Service) ResolveAll(ctx context.Context) ([]entitlementdomain.Entitlement, error) {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok || userID == 0 {
		return nil, subscriptiondomain.ErrInvalidUser
	}

	now := s.clock.Now()
	plan, anchor, err := s.effectivePlan(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	features, err := s.plansvc.GetFeatures(ctx, plan.ID)
	if err != nil {
		return nil, err
	}

	entitlements := make([]entitlementdomain.Entitlement, 0, len(features))
	for _, feature := range features {
		ent, err := s.resolveFeature(ctx, userID, feature, anchor, now)
		if err != nil {
			return nil, err
		}
		entitlements = append(entitlements, ent)
	}
	return entitlements, nil
}

func (s *Service) Check(ctx context.Context, featureCode string) (entitlementdomain.Entitlement, error) {
	entitlements, err := s.ResolveAll(ctx)
	if err != nil {
		return entitlementdomain.Entitlement{}, err
	}

	ent, found := lo.Find(entitlements, func(e entitlementdomain.Entitlement) bool {
		return e.Code == featureCode
	})
	if !found {
		s.metrics.RecordEntitlementCheck(ctx, featureCode, false)
		return entitlementdomain.Entitlement{}, entitlementdomain.ErrFeatureNotEntitled
	}
	s.metrics.RecordEntitlementCheck(ctx, featureCode, ent.Allowed())
	return ent, nil
}

// effectivePlan is the user's subscribed plan while the subscription is
// usable, and the freemium plan otherwise. The anchor is the subscription
// cycle start, used to place subscription-relative reset windows.
func (s *Service) effectivePlan(ctx context.Context, userID snowflake.ID, now time.Time) (plandomain.SubscriptionPlan, time.Time, error) {
	sub, err := s.subRepo.FindCurrentByUserID(ctx, s.db, userID)
	if err != nil {
		return plandomain.SubscriptionPlan{}, time.Time{}, err
	}

	if sub != nil && sub.Usable(now) {
		plan, err := s.plansvc.Get(ctx, sub.PlanID)
		if err == nil {
			return plan, sub.StartAt, nil
		}
		if !errors.Is(err, plandomain.ErrPlanNotFound) {
			return plandomain.SubscriptionPlan{}, time.Time{}, err
		}
		s.log.Warn("subscribed plan missing from catalog, using freemium grants",
			zap.Int64("user_id", int64(userID)),
			zap.Int64("plan_id", int64(sub.PlanID)),
		)
	}

	return s.freemiumPlan(ctx, now)
}

func (s *Service) freemiumPlan(ctx context.Context, now time.Time) (plandomain.SubscriptionPlan, time.Time, error) {
	listed, err := s.plansvc.ListActive(ctx, regiondomain.RegionGlobal)
	if err != nil {
		return plandomain.SubscriptionPlan{}, time.Time{}, err
	}

	entry, found := lo.Find(listed, func(p plandomain.PlanWithPrice) bool {
		return p.Plan.Freemium
	})
	if !found {
		return plandomain.SubscriptionPlan{}, time.Time{}, entitlementdomain.ErrNoFreemiumPlan
	}
	return entry.Plan, now, nil
}

func (s *Service) resolveFeature(ctx context.Context, userID snowflake.ID, feature plandomain.PlanFeature, anchor, now time.Time) (entitlementdomain.Entitlement, error) {
	ent := entitlementdomain.Entitlement{
		Code:           feature.Code,
		Name:           feature.Name,
		LimitType:      feature.LimitType,
		Limit:          feature.LimitValue,
		ResetFrequency: feature.ResetFrequency,
		WindowStart:    windowStart(feature.ResetFrequency, anchor, now),
	}

	switch feature.LimitType {
	case plandomain.LimitUnlimited, plandomain.LimitBoolean:
		return ent, nil
	}

	if s.usage == nil {
		ent.Remaining = ent.Limit
		return ent, nil
	}

	used, err := s.usage.UsedCount(ctx, userID, feature.Code, ent.WindowStart)
	if err != nil {
		return entitlementdomain.Entitlement{}, err
	}
	ent.Used = used
	ent.Remaining = ent.Limit - used
	if ent.Remaining < 0 {
		ent.Remaining = 0
	}
	return ent, nil
}

// windowStart places the current usage window. Daily and weekly windows
// follow the calendar; monthly and yearly windows follow the subscription
// cycle anchor.
func windowStart(freq plandomain.ResetFrequency, anchor, now time.Time) time.Time {
	switch freq {
	case plandomain.ResetDaily:
		year, month, day := now.Date()
		return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	case plandomain.ResetWeekly:
		year, month, day := now.Date()
		midnight := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
		offset := (int(midnight.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	case plandomain.ResetMonthly:
		start := anchor
		for start.AddDate(0, 1, 0).Before(now) || start.AddDate(0, 1, 0).Equal(now) {
			start = start.AddDate(0, 1, 0)
		}
		return start
	case plandomain.ResetYearly:
		start := anchor
		for start.AddDate(1, 0, 0).Before(now) || start.AddDate(1, 0, 0).Equal(now) {
			start = start.AddDate(1, 0, 0)
		}
		return start
	default:
		return anchor
	}
}
