// Package domain defines effective feature entitlements: the plan's grants
// merged with recorded usage for the current window.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
)

// Entitlement is one feature the user can exercise right now.
type Entitlement struct {
	Code           string                    `json:"code"`
	Name           string                    `json:"name"`
	LimitType      plandomain.LimitType      `json:"limit_type"`
	Limit          int64                     `json:"limit"`
	Used           int64                     `json:"used"`
	Remaining      int64                     `json:"remaining"`
	ResetFrequency plandomain.ResetFrequency `json:"reset_frequency"`
	WindowStart    time.Time                 `json:"window_start"`
}

// Allowed reports whether one more use of the feature fits the grant.
func (e Entitlement) Allowed() bool {
	switch e.LimitType {
	case plandomain.LimitUnlimited:
		return true
	case plandomain.LimitBoolean:
		return e.Limit > 0
	default:
		return e.Remaining > 0
	}
}

// UsageSource reports how many times a user exercised a feature since the
// start of the current reset window. It is owned by the product's usage
// tracking, not by this subsystem.
type UsageSource interface {
	UsedCount(ctx context.Context, userID snowflake.ID, featureCode string, since time.Time) (int64, error)
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	// ResolveAll returns every feature the user's effective plan grants.
	// Users without a live subscription fall back to the freemium plan.
	ResolveAll(ctx context.Context) ([]Entitlement, error)
	// Check resolves a single feature and fails when the plan does not
	// grant it.
	Check(ctx context.Context, featureCode string) (Entitlement, error)
}

var (
	ErrFeatureNotEntitled = errors.New("feature_not_entitled")
	ErrNoFreemiumPlan     = errors.New("no_freemium_plan")
)
