package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/resumeforge/resumeforge/internal/clock"
	"github.com/resumeforge/resumeforge/internal/config"
	obsmetrics "github.com/resumeforge/resumeforge/internal/observability/metrics"
	paymentdomain "github.com/resumeforge/resumeforge/internal/payment/domain"
	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
	"github.com/resumeforge/resumeforge/internal/proration"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	subscriptiondomain "github.com/resumeforge/resumeforge/internal/subscription/domain"
	"github.com/resumeforge/resumeforge/internal/usercontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository

	plansvc     plandomain.Service
	regions     regiondomain.Resolver
	paymentRepo paymentdomain.Repository
	gateway     paymentdomain.PaymentAdapter
	lifecycle   *config.LifecycleConfigHolder
	metrics     *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository

	Plansvc     plandomain.Service
	Regions     regiondomain.Resolver
	PaymentRepo paymentdomain.Repository
	Gateway     paymentdomain.PaymentAdapter
	Lifecycle   *config.LifecycleConfigHolder
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		plansvc:     p.Plansvc,
		regions:     p.Regions,
		paymentRepo: p.PaymentRepo,
		gateway:     p.Gateway,
		lifecycle:   p.Lifecycle,
		metrics:     p.Metrics,
	}
}

func (s *Service) Subscribe(ctx context.Context, req subscriptiondomain.SubscribeRequest) (subscriptiondomain.SubscribeResponse, error) {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok || userID == 0 {
		return subscriptiondomain.SubscribeResponse{}, subscriptiondomain.ErrInvalidUser
	}

	existing, err := s.repo.FindCurrentByUserID(ctx, s.db, userID)
	if err != nil {
		return subscriptiondomain.SubscribeResponse{}, err
	}
	if existing != nil {
		return subscriptiondomain.SubscribeResponse{}, subscriptiondomain.ErrActiveSubscriptionExists
	}

	plan, err := s.plansvc.Get(ctx, req.PlanID)
	if err != nil {
		return subscriptiondomain.SubscribeResponse{}, err
	}
	if !plan.Active {
		return subscriptiondomain.SubscribeResponse{}, plandomain.ErrPlanInactive
	}

	resolution := s.regions.Resolve(ctx, userID, req.ClientIP)
	price, err := s.plansvc.GetPricing(ctx, plan.ID, resolution.Region)
	if err != nil {
		return subscriptiondomain.SubscribeResponse{}, err
	}

	now := s.clock.Now()
	if plan.Freemium || subscriptiondomain.IsFree(price) {
		sub := &subscriptiondomain.UserSubscription{
			ID:        s.genID.Generate(),
			UserID:    userID,
			AutoRenew: true,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		sub.StartCycle(plan, now)
		if err := s.repo.Insert(ctx, s.db, sub); err != nil {
			return subscriptiondomain.SubscribeResponse{}, err
		}
		s.log.Info("freemium subscription created",
			zap.Int64("user_id", int64(userID)),
			zap.String("plan", plan.Code),
		)
		return subscriptiondomain.SubscribeResponse{Subscription: sub}, nil
	}

	// Paid plans go through hosted checkout. The user owns no subscription
	// row yet, so the key is derived from the user instead.
	key := idempotencyKey(int64(userID), plan.ID, 0)
	session, err := s.openCheckout(ctx, openCheckoutParams{
		userID:   userID,
		plan:     plan,
		purpose:  paymentdomain.PurposeNewSubscription,
		key:      key,
		amount:   price,
		now:      now,
		describe: fmt.Sprintf("subscription to %s", plan.Name),
	})
	if err != nil {
		return subscriptiondomain.SubscribeResponse{}, err
	}

	return subscriptiondomain.SubscribeResponse{
		CheckoutURL: session.CheckoutURL,
		SessionID:   session.SessionID,
	}, nil
}

func (s *Service) Upgrade(ctx context.Context, req subscriptiondomain.UpgradeRequest) (subscriptiondomain.UpgradeResponse, error) {
	userID, sub, err := s.currentForUser(ctx)
	if err != nil {
		return subscriptiondomain.UpgradeResponse{}, err
	}
	if sub.Status != subscriptiondomain.StatusActive {
		return subscriptiondomain.UpgradeResponse{}, subscriptiondomain.ErrNotActive
	}
	if sub.PlanID == req.TargetPlanID {
		return subscriptiondomain.UpgradeResponse{}, subscriptiondomain.ErrSamePlan
	}
	if sub.HasPendingChange() {
		return subscriptiondomain.UpgradeResponse{}, subscriptiondomain.ErrPendingChangeAlreadyExists
	}

	change, err := s.resolveChange(ctx, userID, sub, req.TargetPlanID, req.ClientIP)
	if err != nil {
		return subscriptiondomain.UpgradeResponse{}, err
	}
	if change.changeType != subscriptiondomain.ChangeTypeUpgrade {
		return subscriptiondomain.UpgradeResponse{}, subscriptiondomain.ErrWrongDirection
	}

	now := s.clock.Now()
	result, err := proration.Compute(proration.Params{
		CurrentPrice: change.currentPrice.Amount,
		CycleStart:   sub.StartAt,
		CycleEnd:     sub.EndAt,
		NewPrice:     change.targetPrice.Amount,
		Now:          now,
		Currency:     change.targetPrice.Currency,
	})
	if err != nil {
		return subscriptiondomain.UpgradeResponse{}, err
	}

	preview := subscriptiondomain.UpgradePreview{
		ProrationAmount: result.ProrationAmount,
		RemainingValue:  result.RemainingValue,
		NewPlanPrice:    result.NewPlanPrice,
		Currency:        result.Currency,
	}

	// A fully-covered upgrade has nothing to charge, so it commits without
	// a checkout round trip.
	if result.ProrationAmount.IsZero() {
		_, err := s.updateWithRetry(ctx, sub.ID, func(cur *subscriptiondomain.UserSubscription) error {
			if cur.Status != subscriptiondomain.StatusActive {
				return subscriptiondomain.ErrNotActive
			}
			if cur.HasPendingChange() {
				return subscriptiondomain.ErrPendingChangeAlreadyExists
			}
			cur.StartCycle(change.targetPlan, now)
			return nil
		})
		if err != nil {
			return subscriptiondomain.UpgradeResponse{}, err
		}
		s.metrics.RecordSubscriptionChange(ctx, string(subscriptiondomain.ChangeTypeUpgrade))
		return subscriptiondomain.UpgradeResponse{Preview: preview, Applied: true}, nil
	}

	key := idempotencyKey(int64(sub.ID), change.targetPlan.ID, sub.Version)
	session, err := s.openCheckout(ctx, openCheckoutParams{
		userID:          userID,
		plan:            change.targetPlan,
		purpose:         paymentdomain.PurposeUpgrade,
		key:             key,
		subscriptionID:  sub.ID,
		expectedVersion: sub.Version,
		amount: plandomain.ResolvedPrice{
			PlanID:   change.targetPlan.ID,
			Region:   change.targetPrice.Region,
			Currency: change.targetPrice.Currency,
			Amount:   result.ProrationAmount,
		},
		now:      now,
		describe: fmt.Sprintf("upgrade to %s", change.targetPlan.Name),
	})
	if err != nil {
		return subscriptiondomain.UpgradeResponse{}, err
	}

	return subscriptiondomain.UpgradeResponse{
		Preview:     preview,
		CheckoutURL: session.CheckoutURL,
		SessionID:   session.SessionID,
	}, nil
}

func (s *Service) Downgrade(ctx context.Context, req subscriptiondomain.DowngradeRequest) (subscriptiondomain.DowngradeResponse, error) {
	userID, sub, err := s.currentForUser(ctx)
	if err != nil {
		return subscriptiondomain.DowngradeResponse{}, err
	}
	if sub.Status != subscriptiondomain.StatusActive {
		return subscriptiondomain.DowngradeResponse{}, subscriptiondomain.ErrNotActive
	}
	if sub.PlanID == req.TargetPlanID {
		return subscriptiondomain.DowngradeResponse{}, subscriptiondomain.ErrSamePlan
	}
	if sub.HasPendingChange() {
		return subscriptiondomain.DowngradeResponse{}, subscriptiondomain.ErrPendingChangeAlreadyExists
	}

	change, err := s.resolveChange(ctx, userID, sub, req.TargetPlanID, req.ClientIP)
	if err != nil {
		return subscriptiondomain.DowngradeResponse{}, err
	}
	if change.changeType != subscriptiondomain.ChangeTypeDowngrade {
		return subscriptiondomain.DowngradeResponse{}, subscriptiondomain.ErrWrongDirection
	}

	now := s.clock.Now()

	// Dropping to a free plan applies at once. The unused paid time is
	// surfaced as a courtesy credit, never refunded.
	if change.targetPlan.Freemium || subscriptiondomain.IsFree(change.targetPrice) {
		credit := proration.CourtesyCredit(
			change.currentPrice.Amount, sub.StartAt, sub.EndAt, now, change.currentPrice.Currency)
		updated, err := s.updateWithRetry(ctx, sub.ID, func(cur *subscriptiondomain.UserSubscription) error {
			if cur.Status != subscriptiondomain.StatusActive {
				return subscriptiondomain.ErrNotActive
			}
			cur.StartCycle(change.targetPlan, now)
			return nil
		})
		if err != nil {
			return subscriptiondomain.DowngradeResponse{}, err
		}
		s.log.Info("downgraded to freemium",
			zap.Int64("subscription_id", int64(sub.ID)),
			zap.String("courtesy_credit", credit.String()),
		)
		s.metrics.RecordSubscriptionChange(ctx, string(subscriptiondomain.ChangeTypeDowngrade))
		resp := subscriptiondomain.DowngradeResponse{Subscription: *updated, Applied: true}
		if credit.IsPositive() {
			resp.CourtesyCredit = &credit
		}
		return resp, nil
	}

	targetID := change.targetPlan.ID
	changeType := subscriptiondomain.ChangeTypeDowngrade
	updated, err := s.updateWithRetry(ctx, sub.ID, func(cur *subscriptiondomain.UserSubscription) error {
		if cur.Status != subscriptiondomain.StatusActive {
			return subscriptiondomain.ErrNotActive
		}
		if cur.HasPendingChange() {
			return subscriptiondomain.ErrPendingChangeAlreadyExists
		}
		effectiveAt := cur.EndAt
		cur.PendingPlanID = &targetID
		cur.PendingChangeAt = &effectiveAt
		cur.PendingChangeType = &changeType
		return nil
	})
	if err != nil {
		return subscriptiondomain.DowngradeResponse{}, err
	}
	s.metrics.RecordSubscriptionChange(ctx, string(subscriptiondomain.ChangeTypeDowngrade))

	return subscriptiondomain.DowngradeResponse{Subscription: *updated}, nil
}

func (s *Service) Cancel(ctx context.Context) (subscriptiondomain.UserSubscription, error) {
	_, sub, err := s.currentForUser(ctx)
	if err != nil {
		return subscriptiondomain.UserSubscription{}, err
	}
	if sub.Status == subscriptiondomain.StatusCancelled {
		return *sub, nil
	}

	updated, err := s.updateWithRetry(ctx, sub.ID, func(cur *subscriptiondomain.UserSubscription) error {
		if cur.Status == subscriptiondomain.StatusCancelled {
			return nil
		}
		cur.Status = subscriptiondomain.StatusCancelled
		cur.AutoRenew = false
		cur.ClearPendingChange()
		return nil
	})
	if err != nil {
		return subscriptiondomain.UserSubscription{}, err
	}
	return *updated, nil
}

func (s *Service) CancelPendingChange(ctx context.Context) (subscriptiondomain.UserSubscription, error) {
	_, sub, err := s.currentForUser(ctx)
	if err != nil {
		return subscriptiondomain.UserSubscription{}, err
	}
	if !sub.HasPendingChange() {
		return subscriptiondomain.UserSubscription{}, subscriptiondomain.ErrNoPendingChange
	}

	updated, err := s.updateWithRetry(ctx, sub.ID, func(cur *subscriptiondomain.UserSubscription) error {
		if !cur.HasPendingChange() {
			return subscriptiondomain.ErrNoPendingChange
		}
		cur.ClearPendingChange()
		return nil
	})
	if err != nil {
		return subscriptiondomain.UserSubscription{}, err
	}
	return *updated, nil
}

func (s *Service) GetCurrent(ctx context.Context) (subscriptiondomain.UserSubscription, error) {
	_, sub, err := s.currentForUser(ctx)
	if err != nil {
		return subscriptiondomain.UserSubscription{}, err
	}
	return *sub, nil
}

func (s *Service) GetPendingChange(ctx context.Context) (subscriptiondomain.PendingChange, error) {
	_, sub, err := s.currentForUser(ctx)
	if err != nil {
		return subscriptiondomain.PendingChange{}, err
	}
	if !sub.HasPendingChange() {
		return subscriptiondomain.PendingChange{}, subscriptiondomain.ErrNoPendingChange
	}
	return subscriptiondomain.PendingChange{
		PlanID:      *sub.PendingPlanID,
		EffectiveAt: *sub.PendingChangeAt,
		ChangeType:  *sub.PendingChangeType,
	}, nil
}

// ConfirmCheckout is invoked from verified webhook processing. A consumed
// session acknowledges without effect, so redelivered events are harmless.
func (s *Service) ConfirmCheckout(ctx context.Context, sessionID string) error {
	now := s.clock.Now()

	return s.db.Transaction(func(tx *gorm.DB) error {
		session, err := s.paymentRepo.FindSessionBySessionID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return subscriptiondomain.ErrCheckoutSessionNotFound
		}
		if session.Status != paymentdomain.SessionPending {
			return nil
		}

		plan, err := s.plansvc.Get(ctx, session.PlanID)
		if err != nil {
			return err
		}

		switch session.Purpose {
		case paymentdomain.PurposeNewSubscription:
			existing, err := s.repo.FindCurrentByUserID(ctx, tx, session.UserID)
			if err != nil {
				return err
			}
			if existing == nil {
				sub := &subscriptiondomain.UserSubscription{
					ID:        s.genID.Generate(),
					UserID:    session.UserID,
					AutoRenew: true,
					Version:   1,
					CreatedAt: now,
					UpdatedAt: now,
				}
				sub.StartCycle(plan, now)
				if err := s.repo.Insert(ctx, tx, sub); err != nil {
					return err
				}
			} else {
				s.log.Warn("checkout confirmed for user with live subscription",
					zap.Int64("user_id", int64(session.UserID)),
					zap.String("session_id", session.SessionID),
				)
			}

		case paymentdomain.PurposeUpgrade:
			// The session was priced against a specific subscription version.
			// If the row moved on since (cancel, another change), applying the
			// upgrade would overwrite state the user chose later, so the
			// session is retired instead.
			cur, err := s.repo.FindByID(ctx, tx, session.SubscriptionID)
			if err != nil {
				return err
			}
			if cur == nil || cur.Version != session.ExpectedVersion {
				s.log.Warn("upgrade checkout no longer matches the subscription, retiring session",
					zap.String("session_id", session.SessionID),
					zap.Int64("subscription_id", int64(session.SubscriptionID)),
					zap.Int64("expected_version", session.ExpectedVersion),
				)
				_, err := s.paymentRepo.MarkSessionConsumed(ctx, tx, session.SessionID, paymentdomain.SessionExpired, now)
				return err
			}
			if _, err := s.updateWithRetryTx(ctx, tx, session.SubscriptionID, func(c *subscriptiondomain.UserSubscription) error {
				c.StartCycle(plan, now)
				return nil
			}); err != nil {
				return err
			}
			s.metrics.RecordSubscriptionChange(ctx, string(subscriptiondomain.ChangeTypeUpgrade))

		default:
			return paymentdomain.ErrInvalidEvent
		}

		ok, err := s.paymentRepo.MarkSessionConsumed(ctx, tx, session.SessionID, paymentdomain.SessionCompleted, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		s.log.Info("checkout session committed",
			zap.String("session_id", session.SessionID),
			zap.String("purpose", string(session.Purpose)),
		)
		return nil
	})
}

// ProcessCycleEnd settles one subscription whose period has lapsed. Pending
// changes apply first, then the next cycle either renews or winds down.
func (s *Service) ProcessCycleEnd(ctx context.Context, subID snowflake.ID) error {
	sub, err := s.repo.FindByID(ctx, s.db, subID)
	if err != nil {
		return err
	}
	if sub == nil {
		return subscriptiondomain.ErrSubscriptionNotFound
	}

	now := s.clock.Now()
	if sub.EndAt.After(now) {
		return nil
	}

	switch sub.Status {
	case subscriptiondomain.StatusActive:
	case subscriptiondomain.StatusCancelled:
		_, err := s.updateWithRetry(ctx, sub.ID, func(cur *subscriptiondomain.UserSubscription) error {
			cur.Status = subscriptiondomain.StatusExpired
			cur.ClearPendingChange()
			return nil
		})
		if err == nil {
			obsmetrics.Sweep().IncSubscriptionTransition(
				string(subscriptiondomain.StatusCancelled), string(subscriptiondomain.StatusExpired))
		}
		return err
	default:
		return nil
	}

	if !sub.AutoRenew {
		_, err := s.updateWithRetry(ctx, sub.ID, func(cur *subscriptiondomain.UserSubscription) error {
			cur.Status = subscriptiondomain.StatusExpired
			cur.ClearPendingChange()
			return nil
		})
		if err == nil {
			obsmetrics.Sweep().IncSubscriptionTransition(
				string(subscriptiondomain.StatusActive), string(subscriptiondomain.StatusExpired))
		}
		return err
	}

	// A recorded downgrade takes effect at the boundary; otherwise the
	// current plan renews.
	renewPlanID := sub.PlanID
	if sub.HasPendingChange() {
		renewPlanID = *sub.PendingPlanID
	}

	plan, err := s.plansvc.Get(ctx, renewPlanID)
	if err != nil {
		if errors.Is(err, plandomain.ErrPlanNotFound) && renewPlanID != sub.PlanID {
			// The scheduled target vanished from the catalog; renew the
			// current plan instead.
			s.log.Warn("pending plan no longer available, renewing current plan",
				zap.Int64("subscription_id", int64(sub.ID)),
				zap.Int64("pending_plan_id", int64(renewPlanID)),
			)
			plan, err = s.plansvc.Get(ctx, sub.PlanID)
			if err != nil {
				return err
			}
		} else {
			return err
		}
	}

	resolution := s.regions.Resolve(ctx, sub.UserID, "")
	price, err := s.plansvc.GetPricing(ctx, plan.ID, resolution.Region)
	if err != nil {
		return err
	}

	// Periods chain off the previous end date, not the sweep time, so a
	// late sweep does not stretch the cycle.
	cycleStart := sub.EndAt

	if plan.Freemium || subscriptiondomain.IsFree(price) {
		_, err := s.updateWithRetry(ctx, sub.ID, func(cur *subscriptiondomain.UserSubscription) error {
			cur.StartCycle(plan, cycleStart)
			return nil
		})
		return err
	}

	chargeErr := s.gateway.ChargeRenewal(ctx, paymentdomain.ChargeRenewalRequest{
		SubscriptionID: sub.ID.String(),
		IdempotencyKey: idempotencyKey(int64(sub.ID), plan.ID, sub.Version),
		Amount:         price.Amount,
		Currency:       price.Currency,
	})
	switch {
	case chargeErr == nil:
		_, err := s.updateWithRetry(ctx, sub.ID, func(cur *subscriptiondomain.UserSubscription) error {
			cur.StartCycle(plan, cycleStart)
			return nil
		})
		return err
	case errors.Is(chargeErr, paymentdomain.ErrChargeDeclined):
		graceDays := s.lifecycle.Current().GraceDays
		graceUntil := now.AddDate(0, 0, graceDays)
		_, err := s.updateWithRetry(ctx, sub.ID, func(cur *subscriptiondomain.UserSubscription) error {
			cur.Status = subscriptiondomain.StatusGracePeriod
			cur.GraceUntil = &graceUntil
			return nil
		})
		if err != nil {
			return err
		}
		obsmetrics.Sweep().IncSubscriptionTransition(
			string(subscriptiondomain.StatusActive), string(subscriptiondomain.StatusGracePeriod))
		s.log.Info("renewal declined, grace period started",
			zap.Int64("subscription_id", int64(sub.ID)),
			zap.Time("grace_until", graceUntil),
		)
		return nil
	default:
		// Transient provider failure. Leave the row untouched; the next
		// sweep retries.
		return chargeErr
	}
}

// ProcessGrace gives one lapsed grace subscription a final charge attempt
// and expires it when the charge still fails.
func (s *Service) ProcessGrace(ctx context.Context, subID snowflake.ID) error {
	sub, err := s.repo.FindByID(ctx, s.db, subID)
	if err != nil {
		return err
	}
	if sub == nil {
		return subscriptiondomain.ErrSubscriptionNotFound
	}
	if sub.Status != subscriptiondomain.StatusGracePeriod {
		return nil
	}

	now := s.clock.Now()
	if sub.GraceUntil == nil || sub.GraceUntil.After(now) {
		return nil
	}

	plan, err := s.plansvc.Get(ctx, sub.PlanID)
	if err == nil {
		resolution := s.regions.Resolve(ctx, sub.UserID, "")
		price, priceErr := s.plansvc.GetPricing(ctx, plan.ID, resolution.Region)
		if priceErr == nil && !subscriptiondomain.IsFree(price) {
			chargeErr := s.gateway.ChargeRenewal(ctx, paymentdomain.ChargeRenewalRequest{
				SubscriptionID: sub.ID.String(),
				IdempotencyKey: idempotencyKey(int64(sub.ID), plan.ID, sub.Version),
				Amount:         price.Amount,
				Currency:       price.Currency,
			})
			if chargeErr == nil {
				_, err := s.updateWithRetry(ctx, sub.ID, func(cur *subscriptiondomain.UserSubscription) error {
					cur.StartCycle(plan, now)
					return nil
				})
				if err == nil {
					obsmetrics.Sweep().IncSubscriptionTransition(
						string(subscriptiondomain.StatusGracePeriod), string(subscriptiondomain.StatusActive))
				}
				return err
			}
			if !errors.Is(chargeErr, paymentdomain.ErrChargeDeclined) {
				return chargeErr
			}
		}
	}

	_, err = s.updateWithRetry(ctx, sub.ID, func(cur *subscriptiondomain.UserSubscription) error {
		cur.Status = subscriptiondomain.StatusExpired
		cur.GraceUntil = nil
		cur.ClearPendingChange()
		return nil
	})
	if err != nil {
		return err
	}
	obsmetrics.Sweep().IncSubscriptionTransition(
		string(subscriptiondomain.StatusGracePeriod), string(subscriptiondomain.StatusExpired))
	s.log.Info("subscription expired after grace period",
		zap.Int64("subscription_id", int64(sub.ID)),
	)
	return nil
}

type planChange struct {
	targetPlan   plandomain.SubscriptionPlan
	currentPrice plandomain.ResolvedPrice
	targetPrice  plandomain.ResolvedPrice
	changeType   subscriptiondomain.ChangeType
}

func (s *Service) resolveChange(ctx context.Context, userID snowflake.ID, sub *subscriptiondomain.UserSubscription, targetPlanID snowflake.ID, clientIP string) (planChange, error) {
	currentPlan, err := s.plansvc.Get(ctx, sub.PlanID)
	if err != nil {
		return planChange{}, err
	}
	targetPlan, err := s.plansvc.Get(ctx, targetPlanID)
	if err != nil {
		return planChange{}, err
	}
	if !targetPlan.Active {
		return planChange{}, plandomain.ErrPlanInactive
	}

	resolution := s.regions.Resolve(ctx, userID, clientIP)
	currentPrice, err := s.plansvc.GetPricing(ctx, currentPlan.ID, resolution.Region)
	if err != nil {
		return planChange{}, err
	}
	targetPrice, err := s.plansvc.GetPricing(ctx, targetPlan.ID, resolution.Region)
	if err != nil {
		return planChange{}, err
	}

	return planChange{
		targetPlan:   targetPlan,
		currentPrice: currentPrice,
		targetPrice:  targetPrice,
		changeType:   subscriptiondomain.ClassifyChange(currentPrice, targetPrice),
	}, nil
}

type openCheckoutParams struct {
	userID          snowflake.ID
	plan            plandomain.SubscriptionPlan
	purpose         paymentdomain.CheckoutPurpose
	key             string
	subscriptionID  snowflake.ID
	expectedVersion int64
	amount          plandomain.ResolvedPrice
	now             time.Time
	describe        string
}

func (s *Service) openCheckout(ctx context.Context, p openCheckoutParams) (*paymentdomain.CheckoutSession, error) {
	// A retried request reuses the open session for the same decision
	// instead of opening a second charge.
	existing, err := s.paymentRepo.FindSessionByIdempotencyKey(ctx, s.db, p.key)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == paymentdomain.SessionPending {
		return existing, nil
	}

	sessionID := ulid.Make().String()
	provider, err := s.gateway.CreateCheckoutSession(ctx, paymentdomain.CreateCheckoutRequest{
		SessionID:      sessionID,
		IdempotencyKey: p.key,
		Amount:         p.amount.Amount,
		Currency:       p.amount.Currency,
		Description:    p.describe,
	})
	if err != nil {
		return nil, err
	}

	// A settled row for the same key means the prior attempt ended without
	// advancing the subscription (expired or abandoned). Reopen it in place
	// so the unique key index stays satisfied.
	if existing != nil {
		existing.SessionID = sessionID
		existing.UserID = p.userID
		existing.PlanID = p.plan.ID
		existing.SubscriptionID = p.subscriptionID
		existing.Purpose = p.purpose
		existing.Region = p.amount.Region
		existing.Currency = p.amount.Currency
		existing.Amount = p.amount.Amount
		existing.ExpectedVersion = p.expectedVersion
		existing.Status = paymentdomain.SessionPending
		existing.ProviderSessionID = provider.ProviderSessionID
		existing.CheckoutURL = provider.CheckoutURL
		existing.ConsumedAt = nil
		existing.UpdatedAt = p.now
		if err := s.paymentRepo.UpdateSession(ctx, s.db, existing); err != nil {
			return nil, err
		}
		s.metrics.RecordCheckoutSession(ctx, string(p.purpose), string(p.amount.Region))
		return existing, nil
	}

	session := &paymentdomain.CheckoutSession{
		ID:                s.genID.Generate(),
		SessionID:         sessionID,
		UserID:            p.userID,
		PlanID:            p.plan.ID,
		SubscriptionID:    p.subscriptionID,
		Purpose:           p.purpose,
		Region:            p.amount.Region,
		Currency:          p.amount.Currency,
		Amount:            p.amount.Amount,
		IdempotencyKey:    p.key,
		ExpectedVersion:   p.expectedVersion,
		Status:            paymentdomain.SessionPending,
		ProviderSessionID: provider.ProviderSessionID,
		CheckoutURL:       provider.CheckoutURL,
		CreatedAt:         p.now,
		UpdatedAt:         p.now,
	}
	if err := s.paymentRepo.InsertSession(ctx, s.db, session); err != nil {
		return nil, err
	}
	s.metrics.RecordCheckoutSession(ctx, string(p.purpose), string(p.amount.Region))
	return session, nil
}

func (s *Service) currentForUser(ctx context.Context) (snowflake.ID, *subscriptiondomain.UserSubscription, error) {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok || userID == 0 {
		return 0, nil, subscriptiondomain.ErrInvalidUser
	}
	sub, err := s.repo.FindCurrentByUserID(ctx, s.db, userID)
	if err != nil {
		return 0, nil, err
	}
	if sub == nil {
		return 0, nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return userID, sub, nil
}

// updateWithRetry applies mutate under optimistic concurrency. A version
// conflict reloads the row and retries exactly once; a second conflict
// surfaces ErrConflict to the caller.
func (s *Service) updateWithRetry(ctx context.Context, id snowflake.ID, mutate func(*subscriptiondomain.UserSubscription) error) (*subscriptiondomain.UserSubscription, error) {
	return s.updateWithRetryTx(ctx, s.db, id, mutate)
}

func (s *Service) updateWithRetryTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, mutate func(*subscriptiondomain.UserSubscription) error) (*subscriptiondomain.UserSubscription, error) {
	for attempt := 0; attempt < 2; attempt++ {
		sub, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, subscriptiondomain.ErrSubscriptionNotFound
		}

		expected := sub.Version
		if err := mutate(sub); err != nil {
			return nil, err
		}
		sub.UpdatedAt = s.clock.Now()

		ok, err := s.repo.UpdateVersioned(ctx, tx, sub, expected)
		if err != nil {
			return nil, err
		}
		if ok {
			return sub, nil
		}

		obsmetrics.Sweep().IncVersionConflict()
		s.log.Warn("subscription version conflict",
			zap.Int64("subscription_id", int64(id)),
			zap.Int64("expected_version", expected),
			zap.Int("attempt", attempt+1),
		)
	}
	return nil, subscriptiondomain.ErrConflict
}

func idempotencyKey(ownerID int64, planID snowflake.ID, version int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%d", ownerID, planID, version)))
	return hex.EncodeToString(sum[:])
}
