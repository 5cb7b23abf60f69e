package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() plandomain.Repository {
	return &repository{}
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*plandomain.SubscriptionPlan, error) {
	var plan plandomain.SubscriptionPlan
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) ListActive(ctx context.Context, db *gorm.DB) ([]plandomain.SubscriptionPlan, error) {
	var plans []plandomain.SubscriptionPlan
	err := db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at asc").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) ListPricing(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]plandomain.PlanPricing, error) {
	var rows []plandomain.PlanPricing
	err := db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListFeatures(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]plandomain.PlanFeature, error) {
	var rows []plandomain.PlanFeature
	err := db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("code asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
