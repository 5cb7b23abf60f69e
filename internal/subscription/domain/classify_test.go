package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
)

func price(amount string) plandomain.ResolvedPrice {
	return plandomain.ResolvedPrice{Amount: decimal.RequireFromString(amount)}
}

func TestClassifyChange(t *testing.T) {
	tests := []struct {
		name    string
		current plandomain.ResolvedPrice
		target  plandomain.ResolvedPrice
		want    ChangeType
	}{
		{"higher price is an upgrade", price("10.00"), price("96.00"), ChangeTypeUpgrade},
		{"lower price is a downgrade", price("96.00"), price("10.00"), ChangeTypeDowngrade},
		{"paid to free is a downgrade", price("10.00"), price("0"), ChangeTypeDowngrade},
		{"equal price is a downgrade", price("10.00"), price("10.00"), ChangeTypeDowngrade},
		{"sub-cent difference still counts", price("10.00"), price("10.01"), ChangeTypeUpgrade},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyChange(tt.current, tt.target))
		})
	}
}

func TestClassifyChange_UpgradeNeedsStrictlyHigherPrice(t *testing.T) {
	p := price("10.00")

	assert.Equal(t, ChangeTypeDowngrade, ClassifyChange(p, p))
	assert.Equal(t, ChangeTypeDowngrade, ClassifyChange(p, price("9.99")))
	assert.Equal(t, ChangeTypeUpgrade, ClassifyChange(p, price("10.01")))
}

func TestIsFree(t *testing.T) {
	assert.True(t, IsFree(price("0")))
	assert.True(t, IsFree(price("-1")))
	assert.False(t, IsFree(price("0.01")))
}

func TestUsable(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	endAt := now.AddDate(0, 0, 10)
	graceUntil := now.AddDate(0, 0, 3)

	assert.True(t, UserSubscription{Status: StatusActive, EndAt: endAt}.Usable(now))
	assert.True(t, UserSubscription{Status: StatusCancelled, EndAt: endAt}.Usable(now))
	assert.False(t, UserSubscription{Status: StatusCancelled, EndAt: now}.Usable(now))
	assert.True(t, UserSubscription{Status: StatusGracePeriod, EndAt: now, GraceUntil: &graceUntil}.Usable(now))
	assert.False(t, UserSubscription{Status: StatusGracePeriod, EndAt: now}.Usable(now))
	assert.False(t, UserSubscription{Status: StatusExpired, EndAt: endAt}.Usable(now))
}

func TestStartCycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	pending := plandomain.SubscriptionPlan{ID: 7, BillingCycle: plandomain.CycleMonthly}
	grace := now.AddDate(0, 0, 7)
	pendingID := pending.ID
	pendingType := ChangeTypeDowngrade

	sub := UserSubscription{
		Status:            StatusGracePeriod,
		GraceUntil:        &grace,
		PendingPlanID:     &pendingID,
		PendingChangeAt:   &now,
		PendingChangeType: &pendingType,
	}
	sub.StartCycle(pending, now)

	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, pending.ID, sub.PlanID)
	assert.Equal(t, now, sub.StartAt)
	assert.Equal(t, now.AddDate(0, 1, 0), sub.EndAt)
	assert.Nil(t, sub.GraceUntil)
	assert.False(t, sub.HasPendingChange())
}
