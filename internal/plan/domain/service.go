package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	"github.com/shopspring/decimal"
)

// ResolvedPrice is the amount a plan costs in one region.
type ResolvedPrice struct {
	PlanID   snowflake.ID          `json:"plan_id"`
	Region   regiondomain.Region   `json:"region"`
	Currency regiondomain.Currency `json:"currency"`
	Amount   decimal.Decimal       `json:"amount"`
}

// PlanWithPrice is a catalog entry with its price resolved for one region.
type PlanWithPrice struct {
	Plan  SubscriptionPlan `json:"plan"`
	Price ResolvedPrice    `json:"price"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	ListActive(ctx context.Context, region regiondomain.Region) ([]PlanWithPrice, error)
	Get(ctx context.Context, id snowflake.ID) (SubscriptionPlan, error)
	// GetPricing resolves the closed (cycle, region) price table for a plan.
	// A plan without a row for the region falls back to its GLOBAL row.
	GetPricing(ctx context.Context, id snowflake.ID, region regiondomain.Region) (ResolvedPrice, error)
	GetFeatures(ctx context.Context, id snowflake.ID) ([]PlanFeature, error)
}

var (
	ErrPlanNotFound   = errors.New("plan_not_found")
	ErrPlanInactive   = errors.New("plan_inactive")
	ErrPricingMissing = errors.New("plan_pricing_missing")
)
