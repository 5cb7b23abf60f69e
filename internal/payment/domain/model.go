package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// CheckoutPurpose says what a completed checkout session commits.
type CheckoutPurpose string

const (
	PurposeNewSubscription CheckoutPurpose = "NEW_SUBSCRIPTION"
	PurposeUpgrade         CheckoutPurpose = "UPGRADE"
)

// SessionStatus is the lifecycle of a hosted checkout session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "PENDING"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionExpired   SessionStatus = "EXPIRED"
)

// CheckoutSession is the pending-payment record for a new subscription or an
// upgrade. Nothing changes on the subscription row until the provider
// confirms the session; the session carries everything needed to commit.
type CheckoutSession struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	SessionID string       `gorm:"type:text;not null;uniqueIndex" json:"session_id"`
	UserID    snowflake.ID `gorm:"not null;index" json:"user_id"`
	PlanID    snowflake.ID `gorm:"not null" json:"plan_id"`
	// SubscriptionID is zero for a first subscription: the row does not
	// exist yet and is created on confirmation.
	SubscriptionID snowflake.ID    `gorm:"not null;default:0" json:"subscription_id"`
	Purpose        CheckoutPurpose `gorm:"type:text;not null" json:"purpose"`

	Region   regiondomain.Region   `gorm:"type:text;not null" json:"region"`
	Currency regiondomain.Currency `gorm:"type:text;not null" json:"currency"`
	Amount   decimal.Decimal       `gorm:"type:numeric;not null" json:"amount"`

	// IdempotencyKey is derived from the subscription state the session was
	// priced against. Retrying the same change reuses the same key, so the
	// provider never sees two charges for one decision.
	IdempotencyKey string `gorm:"type:text;not null;uniqueIndex" json:"idempotency_key"`
	// ExpectedVersion is the subscription version the session was priced
	// against. Confirmation re-validates against the live row.
	ExpectedVersion int64 `gorm:"not null;default:0" json:"expected_version"`

	Status            SessionStatus `gorm:"type:text;not null;index" json:"status"`
	ProviderSessionID string        `gorm:"type:text" json:"provider_session_id,omitempty"`
	CheckoutURL       string        `gorm:"type:text" json:"checkout_url,omitempty"`
	ConsumedAt        *time.Time    `gorm:"" json:"consumed_at,omitempty"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (CheckoutSession) TableName() string { return "checkout_sessions" }

// WebhookEvent records every accepted provider event. The unique
// (provider, provider_event_id) pair is the dedupe line: a redelivered event
// fails the insert and is acknowledged without reprocessing.
type WebhookEvent struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:text;not null;index:ux_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string         `gorm:"type:text;not null;index:ux_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string         `gorm:"type:text;not null" json:"event_type"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	ReceivedAt      time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt     *time.Time     `gorm:"" json:"processed_at,omitempty"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

const (
	EventTypeCheckoutCompleted = "checkout_completed"
	EventTypeCheckoutExpired   = "checkout_expired"
	EventTypePaymentFailed     = "payment_failed"
)

// PaymentEvent is the canonical provider event parsed by adapters.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderSessionID string
	Type              string
	SessionID         string
	Amount            decimal.Decimal
	Currency          string
	OccurredAt        time.Time
	RawPayload        []byte
}
