package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

//go:generate mockgen -source=repository.go -destination=./mocks/mock_repository.go -package=mocks
type Repository interface {
	InsertSession(ctx context.Context, db *gorm.DB, session *CheckoutSession) error
	FindSessionBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*CheckoutSession, error)
	FindSessionByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*CheckoutSession, error)
	// UpdateSession persists every column of an existing session row.
	// Callers use it to reopen a settled row under a fresh session id.
	UpdateSession(ctx context.Context, db *gorm.DB, session *CheckoutSession) error
	// MarkSessionConsumed flips a pending session to its terminal status. It
	// reports false when the session was already consumed, which callers
	// treat as a duplicate delivery.
	MarkSessionConsumed(ctx context.Context, db *gorm.DB, sessionID string, status SessionStatus, at time.Time) (bool, error)
	// InsertEvent records a delivery. A duplicate (provider, event id) pair
	// returns ErrDuplicateDelivery.
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) error
	FindEventByProviderID(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*WebhookEvent, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
