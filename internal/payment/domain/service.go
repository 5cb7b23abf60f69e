package domain

import (
	"context"
	"errors"
	"net/http"

	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	"github.com/shopspring/decimal"
)

// CreateCheckoutRequest asks the provider for a hosted checkout page.
type CreateCheckoutRequest struct {
	SessionID      string
	IdempotencyKey string
	Amount         decimal.Decimal
	Currency       regiondomain.Currency
	Description    string
}

// ProviderSession is the provider's half of a created checkout.
type ProviderSession struct {
	ProviderSessionID string
	CheckoutURL       string
}

// ChargeRenewalRequest charges a stored payment method off-session at
// renewal.
type ChargeRenewalRequest struct {
	SubscriptionID string
	IdempotencyKey string
	Amount         decimal.Decimal
	Currency       regiondomain.Currency
}

// PaymentAdapter is the provider boundary. One adapter per provider; the
// rest of the system never sees provider wire formats.
type PaymentAdapter interface {
	// CreateCheckoutSession opens a hosted checkout. Passing the same
	// idempotency key returns the same provider session.
	CreateCheckoutSession(ctx context.Context, req CreateCheckoutRequest) (ProviderSession, error)
	// ChargeRenewal attempts an off-session renewal charge and reports its
	// outcome synchronously.
	ChargeRenewal(ctx context.Context, req ChargeRenewalRequest) error
	// Verify authenticates a webhook delivery against the signing secret.
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	// Parse maps a verified payload to a canonical event.
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// AdapterConfig carries provider credentials from configuration.
type AdapterConfig struct {
	Provider      string
	SigningSecret string
	CheckoutURL   string
	SuccessURL    string
	CancelURL     string
}

// AdapterFactory builds a PaymentAdapter for one provider.
type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// Service ingests provider webhooks.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

var (
	ErrInvalidProvider   = errors.New("invalid_provider")
	ErrProviderNotFound  = errors.New("provider_not_found")
	ErrInvalidConfig     = errors.New("invalid_provider_config")
	ErrInvalidSignature  = errors.New("invalid_signature")
	ErrInvalidPayload    = errors.New("invalid_payload")
	ErrInvalidEvent      = errors.New("invalid_event")
	ErrEventIgnored      = errors.New("event_ignored")
	ErrChargeDeclined    = errors.New("charge_declined")
	ErrDuplicateDelivery = errors.New("duplicate_delivery")
)
