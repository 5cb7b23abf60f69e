// Package webhook ingests payment provider deliveries. Every payload is
// signature-verified before parsing, and every accepted event is recorded so
// redeliveries are acknowledged without reprocessing.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/resumeforge/resumeforge/internal/clock"
	obsmetrics "github.com/resumeforge/resumeforge/internal/observability/metrics"
	"github.com/resumeforge/resumeforge/internal/payment/adapters"
	paymentdomain "github.com/resumeforge/resumeforge/internal/payment/domain"
	subscriptiondomain "github.com/resumeforge/resumeforge/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Registry *adapters.Registry
	Repo     paymentdomain.Repository
	Adapter  paymentdomain.PaymentAdapter
	Subsvc   subscriptiondomain.Service
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	registry *adapters.Registry
	repo     paymentdomain.Repository
	adapter  paymentdomain.PaymentAdapter
	subsvc   subscriptiondomain.Service
	metrics  *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.webhook"),
		genID:    p.GenID,
		clock:    p.Clock,
		registry: p.Registry,
		repo:     p.Repo,
		adapter:  p.Adapter,
		subsvc:   p.Subsvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || !s.registry.ProviderExists(provider) {
		return paymentdomain.ErrInvalidProvider
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	if err := s.adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := s.adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}

	now := s.clock.Now()
	record := &paymentdomain.WebhookEvent{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	if err := s.repo.InsertEvent(ctx, s.db, record); err != nil {
		if errors.Is(err, paymentdomain.ErrDuplicateDelivery) {
			return s.redeliver(ctx, provider, event)
		}
		return err
	}

	s.metrics.RecordWebhookEvent(ctx, provider, event.Type)

	if err := s.dispatch(ctx, event); err != nil {
		return err
	}

	return s.repo.MarkEventProcessed(ctx, s.db, record.ID, s.clock.Now())
}

// redeliver resolves a delivery whose event id was already recorded. A fully
// processed event is acknowledged as a no-op; an event whose first dispatch
// failed mid-flight is dispatched again so the provider's retry can finish
// the work.
func (s *Service) redeliver(ctx context.Context, provider string, event *paymentdomain.PaymentEvent) error {
	stored, err := s.repo.FindEventByProviderID(ctx, s.db, provider, event.ProviderEventID)
	if err != nil {
		return err
	}
	if stored == nil || stored.ProcessedAt != nil {
		s.log.Debug("duplicate webhook delivery acknowledged",
			zap.String("provider", provider),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return nil
	}

	s.log.Info("retrying webhook event left unprocessed by an earlier delivery",
		zap.String("provider", provider),
		zap.String("provider_event_id", event.ProviderEventID),
	)
	if err := s.dispatch(ctx, event); err != nil {
		return err
	}
	return s.repo.MarkEventProcessed(ctx, s.db, stored.ID, s.clock.Now())
}

func (s *Service) dispatch(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	switch event.Type {
	case paymentdomain.EventTypeCheckoutCompleted:
		return s.subsvc.ConfirmCheckout(ctx, event.SessionID)

	case paymentdomain.EventTypeCheckoutExpired:
		_, err := s.repo.MarkSessionConsumed(ctx, s.db, event.SessionID, paymentdomain.SessionExpired, s.clock.Now())
		return err

	case paymentdomain.EventTypePaymentFailed:
		// Renewal charges report their outcome synchronously; the failure
		// event is kept for the audit trail only.
		s.log.Info("payment failure event recorded",
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("session_id", event.SessionID),
		)
		return nil

	default:
		return paymentdomain.ErrInvalidEvent
	}
}
