package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	"github.com/shopspring/decimal"
)

type SubscribeRequest struct {
	PlanID   snowflake.ID `json:"plan_id"`
	ClientIP string       `json:"-"`
}

type SubscribeResponse struct {
	Subscription *UserSubscription `json:"subscription,omitempty"`
	// CheckoutURL is set for paid plans: the subscription is created only
	// after the hosted checkout completes.
	CheckoutURL string `json:"checkout_url,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

type UpgradeRequest struct {
	TargetPlanID snowflake.ID `json:"target_plan_id"`
	ClientIP     string       `json:"-"`
}

// UpgradePreview is the proration result shown to the user before payment.
type UpgradePreview struct {
	ProrationAmount decimal.Decimal       `json:"proration_amount"`
	RemainingValue  decimal.Decimal       `json:"remaining_value"`
	NewPlanPrice    decimal.Decimal       `json:"new_plan_price"`
	Currency        regiondomain.Currency `json:"currency"`
}

type UpgradeResponse struct {
	Preview UpgradePreview `json:"preview"`
	// Applied is true when the remaining-time credit covered the whole
	// upgrade price and the change committed without a checkout.
	Applied     bool   `json:"applied"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

type DowngradeRequest struct {
	TargetPlanID snowflake.ID `json:"target_plan_id"`
	ClientIP     string       `json:"-"`
}

type DowngradeResponse struct {
	Subscription UserSubscription `json:"subscription"`
	// Applied is true when the target was a free plan and the downgrade
	// took effect immediately instead of at the cycle boundary.
	Applied bool `json:"applied"`
	// CourtesyCredit is the unused value of the remaining period when a
	// paid subscription drops to a free plan. It is surfaced, not stored.
	CourtesyCredit *decimal.Decimal `json:"courtesy_credit,omitempty"`
}

type PendingChange struct {
	PlanID      snowflake.ID `json:"plan_id"`
	EffectiveAt time.Time    `json:"effective_at"`
	ChangeType  ChangeType   `json:"change_type"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	Subscribe(ctx context.Context, req SubscribeRequest) (SubscribeResponse, error)
	Upgrade(ctx context.Context, req UpgradeRequest) (UpgradeResponse, error)
	Downgrade(ctx context.Context, req DowngradeRequest) (DowngradeResponse, error)
	// Cancel turns auto-renew off. The subscription stays usable until its
	// current EndAt. Cancelling an already cancelled subscription is a no-op.
	Cancel(ctx context.Context) (UserSubscription, error)
	CancelPendingChange(ctx context.Context) (UserSubscription, error)
	GetCurrent(ctx context.Context) (UserSubscription, error)
	GetPendingChange(ctx context.Context) (PendingChange, error)

	// ConfirmCheckout commits the plan change a completed checkout session
	// paid for. It is the only path that applies an upgrade.
	ConfirmCheckout(ctx context.Context, sessionID string) error

	// ProcessCycleEnd handles one subscription whose period has lapsed:
	// apply its pending change, renew it, or move it toward expiry.
	ProcessCycleEnd(ctx context.Context, subID snowflake.ID) error
	// ProcessGrace expires one subscription whose grace window has lapsed.
	ProcessGrace(ctx context.Context, subID snowflake.ID) error
}

var (
	ErrInvalidUser                = errors.New("invalid_user")
	ErrSubscriptionNotFound       = errors.New("subscription_not_found")
	ErrActiveSubscriptionExists   = errors.New("active_subscription_exists")
	ErrWrongDirection             = errors.New("wrong_change_direction")
	ErrSamePlan                   = errors.New("same_plan")
	ErrNoPendingChange            = errors.New("no_pending_change")
	ErrNotActive                  = errors.New("subscription_not_active")
	ErrConflict                   = errors.New("version_conflict")
	ErrCheckoutSessionNotFound    = errors.New("checkout_session_not_found")
	ErrCheckoutSessionConsumed    = errors.New("checkout_session_consumed")
	ErrStaleCatalog               = errors.New("stale_catalog")
	ErrPendingChangeAlreadyExists = errors.New("pending_change_already_exists")
)
