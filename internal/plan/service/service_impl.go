package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	gocache "github.com/patrickmn/go-cache"
	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	catalogCacheTTL     = 30 * time.Second
	catalogCacheCleanup = 5 * time.Minute
)

// Service is the read side of the plan catalog. Plans change rarely, so
// reads go through a short-TTL in-process cache.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  plandomain.Repository
	cache *gocache.Cache
}

type ServiceParam struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo plandomain.Repository
}

func NewService(p ServiceParam) plandomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		repo:  p.Repo,
		cache: gocache.New(catalogCacheTTL, catalogCacheCleanup),
	}
}

func (s *Service) ListActive(ctx context.Context, region regiondomain.Region) ([]plandomain.PlanWithPrice, error) {
	plans, err := s.listActive(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]plandomain.PlanWithPrice, 0, len(plans))
	for _, plan := range plans {
		price, err := s.GetPricing(ctx, plan.ID, region)
		if err != nil {
			// A plan without pricing rows is a catalog defect; hide it
			// from the listing rather than failing the whole page.
			s.log.Warn("plan has no resolvable pricing",
				zap.String("plan_id", plan.ID.String()),
				zap.String("region", string(region)),
				zap.Error(err),
			)
			continue
		}
		out = append(out, plandomain.PlanWithPrice{Plan: plan, Price: price})
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (plandomain.SubscriptionPlan, error) {
	plan, err := s.findByID(ctx, id)
	if err != nil {
		return plandomain.SubscriptionPlan{}, err
	}
	if plan == nil {
		return plandomain.SubscriptionPlan{}, plandomain.ErrPlanNotFound
	}
	if !plan.Active {
		return plandomain.SubscriptionPlan{}, plandomain.ErrPlanInactive
	}
	return *plan, nil
}

// GetPricing resolves a plan's price for a region from the closed
// (cycle, region) table, falling back to the GLOBAL row.
func (s *Service) GetPricing(ctx context.Context, id snowflake.ID, region regiondomain.Region) (plandomain.ResolvedPrice, error) {
	rows, err := s.listPricing(ctx, id)
	if err != nil {
		return plandomain.ResolvedPrice{}, err
	}
	if len(rows) == 0 {
		return plandomain.ResolvedPrice{}, plandomain.ErrPricingMissing
	}

	byRegion := lo.KeyBy(rows, func(row plandomain.PlanPricing) regiondomain.Region {
		return row.Region
	})

	row, ok := byRegion[region]
	if !ok {
		row, ok = byRegion[regiondomain.RegionGlobal]
	}
	if !ok {
		return plandomain.ResolvedPrice{}, plandomain.ErrPricingMissing
	}

	return plandomain.ResolvedPrice{
		PlanID:   id,
		Region:   row.Region,
		Currency: row.Currency,
		Amount:   row.Amount,
	}, nil
}

func (s *Service) GetFeatures(ctx context.Context, id snowflake.ID) ([]plandomain.PlanFeature, error) {
	plan, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}

	key := fmt.Sprintf("features:%d", id)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]plandomain.PlanFeature), nil
	}

	features, err := s.repo.ListFeatures(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, features)
	return features, nil
}

func (s *Service) findByID(ctx context.Context, id snowflake.ID) (*plandomain.SubscriptionPlan, error) {
	key := fmt.Sprintf("plan:%d", id)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*plandomain.SubscriptionPlan), nil
	}

	plan, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		s.cache.SetDefault(key, plan)
	}
	return plan, nil
}

func (s *Service) listActive(ctx context.Context) ([]plandomain.SubscriptionPlan, error) {
	const key = "plans:active"
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]plandomain.SubscriptionPlan), nil
	}

	plans, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, plans)
	return plans, nil
}

func (s *Service) listPricing(ctx context.Context, id snowflake.ID) ([]plandomain.PlanPricing, error) {
	key := fmt.Sprintf("pricing:%d", id)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]plandomain.PlanPricing), nil
	}

	rows, err := s.repo.ListPricing(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, rows)
	return rows, nil
}
