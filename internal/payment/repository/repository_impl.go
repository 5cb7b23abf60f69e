package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/resumeforge/resumeforge/internal/payment/domain"
	"github.com/resumeforge/resumeforge/pkg/db"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() paymentdomain.Repository {
	return &repository{}
}

func (r *repository) InsertSession(ctx context.Context, gdb *gorm.DB, session *paymentdomain.CheckoutSession) error {
	return gdb.WithContext(ctx).Create(session).Error
}

func (r *repository) FindSessionBySessionID(ctx context.Context, gdb *gorm.DB, sessionID string) (*paymentdomain.CheckoutSession, error) {
	var session paymentdomain.CheckoutSession
	err := gdb.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repository) FindSessionByIdempotencyKey(ctx context.Context, gdb *gorm.DB, key string) (*paymentdomain.CheckoutSession, error) {
	var session paymentdomain.CheckoutSession
	err := gdb.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repository) UpdateSession(ctx context.Context, gdb *gorm.DB, session *paymentdomain.CheckoutSession) error {
	return gdb.WithContext(ctx).Save(session).Error
}

func (r *repository) MarkSessionConsumed(ctx context.Context, gdb *gorm.DB, sessionID string, status paymentdomain.SessionStatus, at time.Time) (bool, error) {
	res := gdb.WithContext(ctx).
		Model(&paymentdomain.CheckoutSession{}).
		Where("session_id = ? AND status = ?", sessionID, paymentdomain.SessionPending).
		Updates(map[string]any{
			"status":      status,
			"consumed_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertEvent(ctx context.Context, gdb *gorm.DB, event *paymentdomain.WebhookEvent) error {
	err := gdb.WithContext(ctx).Create(event).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return paymentdomain.ErrDuplicateDelivery
		}
		return err
	}
	return nil
}

func (r *repository) FindEventByProviderID(ctx context.Context, gdb *gorm.DB, provider, providerEventID string) (*paymentdomain.WebhookEvent, error) {
	var event paymentdomain.WebhookEvent
	err := gdb.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *repository) MarkEventProcessed(ctx context.Context, gdb *gorm.DB, id snowflake.ID, at time.Time) error {
	return gdb.WithContext(ctx).
		Model(&paymentdomain.WebhookEvent{}).
		Where("id = ?", id).
		Update("processed_at", at).Error
}
