package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SubscriptionPlan, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]SubscriptionPlan, error)
	ListPricing(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]PlanPricing, error)
	ListFeatures(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]PlanFeature, error)
}
