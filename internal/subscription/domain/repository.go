package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

//go:generate mockgen -source=repository.go -destination=./mocks/mock_repository.go -package=mocks
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *UserSubscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*UserSubscription, error)
	// FindCurrentByUserID returns the user's newest non-terminal subscription,
	// or nil when the user has none.
	FindCurrentByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*UserSubscription, error)
	// UpdateVersioned writes sub conditionally on its version column still
	// holding expectedVersion, bumping it by one. It reports false when the
	// row changed underneath the caller.
	UpdateVersioned(ctx context.Context, db *gorm.DB, sub *UserSubscription, expectedVersion int64) (bool, error)
	// ListDueForSweep returns active subscriptions whose period lapsed at or
	// before now, oldest first, capped at limit.
	ListDueForSweep(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]UserSubscription, error)
	// ListGraceExpired returns grace-period subscriptions whose grace window
	// lapsed at or before now.
	ListGraceExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]UserSubscription, error)
}
