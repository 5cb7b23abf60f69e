// Package domain contains the subscription lifecycle model and its valid
// transitions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a user subscription.
type SubscriptionStatus string

const (
	// StatusActive: inside the paid (or free) period, renewing.
	StatusActive SubscriptionStatus = "ACTIVE"
	// StatusGracePeriod: renewal charge failed; access continues for a
	// bounded window while the charge is retried.
	StatusGracePeriod SubscriptionStatus = "GRACE_PERIOD"
	// StatusExpired: period over, no access. Terminal.
	StatusExpired SubscriptionStatus = "EXPIRED"
	// StatusCancelled: will not auto-renew but still usable until EndAt.
	StatusCancelled SubscriptionStatus = "CANCELLED"
)

// ChangeType classifies a recorded pending plan change.
type ChangeType string

const (
	ChangeTypeUpgrade   ChangeType = "UPGRADE"
	ChangeTypeDowngrade ChangeType = "DOWNGRADE"
)

// UserSubscription captures one user's subscription to a plan. Terminal rows
// are never deleted; resubscription inserts a new row.
type UserSubscription struct {
	ID     snowflake.ID       `gorm:"primaryKey" json:"id"`
	UserID snowflake.ID       `gorm:"not null;index" json:"user_id"`
	PlanID snowflake.ID       `gorm:"not null;index" json:"plan_id"`
	Status SubscriptionStatus `gorm:"type:text;not null;index" json:"status"`

	StartAt   time.Time `gorm:"not null" json:"start_at"`
	EndAt     time.Time `gorm:"not null;index" json:"end_at"`
	AutoRenew bool      `gorm:"not null;default:true" json:"auto_renew"`

	PendingPlanID     *snowflake.ID `gorm:"" json:"pending_plan_id,omitempty"`
	PendingChangeAt   *time.Time    `gorm:"" json:"pending_change_at,omitempty"`
	PendingChangeType *ChangeType   `gorm:"type:text" json:"pending_change_type,omitempty"`

	GraceUntil *time.Time `gorm:"" json:"grace_until,omitempty"`

	// Version implements optimistic concurrency: every mutation reads it,
	// computes the new row, and writes conditionally on it being unchanged.
	Version int64 `gorm:"not null;default:1" json:"version"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (UserSubscription) TableName() string { return "user_subscriptions" }

// Usable reports whether the subscription grants access at the given time.
func (s UserSubscription) Usable(at time.Time) bool {
	switch s.Status {
	case StatusActive, StatusCancelled:
		return at.Before(s.EndAt)
	case StatusGracePeriod:
		return s.GraceUntil != nil && at.Before(*s.GraceUntil)
	default:
		return false
	}
}

// HasPendingChange reports whether a deferred plan change is recorded.
func (s UserSubscription) HasPendingChange() bool {
	return s.PendingPlanID != nil
}

// ClearPendingChange removes any recorded deferred change.
func (s *UserSubscription) ClearPendingChange() {
	s.PendingPlanID = nil
	s.PendingChangeAt = nil
	s.PendingChangeType = nil
}

// StartCycle moves the subscription onto plan for a fresh billing period
// beginning at now. The end date is derived from the plan's cycle in exactly
// one place, so a MONTHLY subscription always spans one calendar month.
func (s *UserSubscription) StartCycle(plan plandomain.SubscriptionPlan, now time.Time) {
	s.PlanID = plan.ID
	s.Status = StatusActive
	s.StartAt = now
	s.EndAt = plan.BillingCycle.PeriodEnd(now)
	s.GraceUntil = nil
	s.ClearPendingChange()
}
