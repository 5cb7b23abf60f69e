package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/resumeforge/resumeforge/internal/subscription/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() subscriptiondomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.UserSubscription) error {
	return db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.UserSubscription, error) {
	var sub subscriptiondomain.UserSubscription
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindCurrentByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*subscriptiondomain.UserSubscription, error) {
	var sub subscriptiondomain.UserSubscription
	err := db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []subscriptiondomain.SubscriptionStatus{
			subscriptiondomain.StatusActive,
			subscriptiondomain.StatusGracePeriod,
			subscriptiondomain.StatusCancelled,
		}).
		Order("created_at desc").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) UpdateVersioned(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.UserSubscription, expectedVersion int64) (bool, error) {
	sub.Version = expectedVersion + 1
	res := db.WithContext(ctx).
		Model(&subscriptiondomain.UserSubscription{}).
		Where("id = ? AND version = ?", sub.ID, expectedVersion).
		Select("plan_id", "status", "start_at", "end_at", "auto_renew",
			"pending_plan_id", "pending_change_at", "pending_change_type",
			"grace_until", "version", "metadata", "updated_at").
		Updates(sub)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListDueForSweep(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subscriptiondomain.UserSubscription, error) {
	var subs []subscriptiondomain.UserSubscription
	err := db.WithContext(ctx).
		Where("status IN ? AND end_at <= ?", []subscriptiondomain.SubscriptionStatus{
			subscriptiondomain.StatusActive,
			subscriptiondomain.StatusCancelled,
		}, now).
		Order("end_at asc").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListGraceExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subscriptiondomain.UserSubscription, error) {
	var subs []subscriptiondomain.UserSubscription
	err := db.WithContext(ctx).
		Where("status = ? AND grace_until <= ?", subscriptiondomain.StatusGracePeriod, now).
		Order("grace_until asc").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
