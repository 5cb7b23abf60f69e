// Package domain contains the read-only plan catalog models. Plan rows are
// owned by catalog management; this subsystem only reads them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BillingCycle is how often a plan renews.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "MONTHLY"
	CycleYearly  BillingCycle = "YEARLY"
)

// PeriodEnd returns the end of a billing period starting at start. Every
// subscription start, renewal, and pending-change application derives its
// end date here, so a monthly subscription can never carry a yearly span.
func (c BillingCycle) PeriodEnd(start time.Time) time.Time {
	if c == CycleYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// LimitType classifies how a feature grant is bounded.
type LimitType string

const (
	LimitUnlimited LimitType = "UNLIMITED"
	LimitCount     LimitType = "COUNT"
	LimitBoolean   LimitType = "BOOLEAN"
)

// ResetFrequency is how often a counted feature's usage window resets.
type ResetFrequency string

const (
	ResetDaily   ResetFrequency = "DAILY"
	ResetWeekly  ResetFrequency = "WEEKLY"
	ResetMonthly ResetFrequency = "MONTHLY"
	ResetYearly  ResetFrequency = "YEARLY"
	ResetNever   ResetFrequency = "NEVER"
)

// SubscriptionPlan is a sellable plan with per-region pricing rows and
// feature grants.
type SubscriptionPlan struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	Code         string            `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name         string            `gorm:"type:text;not null" json:"name"`
	BillingCycle BillingCycle      `gorm:"type:text;not null" json:"billing_cycle"`
	Freemium     bool              `gorm:"not null;default:false" json:"freemium"`
	Active       bool              `gorm:"not null;default:true" json:"active"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Pricing  []PlanPricing `gorm:"foreignKey:PlanID" json:"pricing,omitempty"`
	Features []PlanFeature `gorm:"foreignKey:PlanID" json:"features,omitempty"`
}

func (SubscriptionPlan) TableName() string { return "subscription_plans" }

// PlanPricing is one (region, currency, amount) row of a plan.
type PlanPricing struct {
	ID        snowflake.ID          `gorm:"primaryKey" json:"id"`
	PlanID    snowflake.ID          `gorm:"not null;index:ux_plan_pricing_plan_region,unique,priority:1" json:"plan_id"`
	Region    regiondomain.Region   `gorm:"type:text;not null;index:ux_plan_pricing_plan_region,unique,priority:2" json:"region"`
	Currency  regiondomain.Currency `gorm:"type:text;not null" json:"currency"`
	Amount    decimal.Decimal       `gorm:"type:numeric;not null" json:"amount"`
	CreatedAt time.Time             `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time             `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PlanPricing) TableName() string { return "plan_pricing" }

// PlanFeature defines an entitlement a plan grants. It carries the limit,
// not the usage; usage is tracked externally.
type PlanFeature struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	PlanID         snowflake.ID   `gorm:"not null;index:ux_plan_features_plan_code,unique,priority:1" json:"plan_id"`
	Code           string         `gorm:"type:text;not null;index:ux_plan_features_plan_code,unique,priority:2" json:"code"`
	Name           string         `gorm:"type:text;not null" json:"name"`
	LimitType      LimitType      `gorm:"type:text;not null" json:"limit_type"`
	LimitValue     int64          `gorm:"not null;default:0" json:"limit_value"`
	ResetFrequency ResetFrequency `gorm:"type:text;not null;default:'NEVER'" json:"reset_frequency"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PlanFeature) TableName() string { return "plan_features" }
