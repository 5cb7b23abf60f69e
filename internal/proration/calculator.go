// Package proration computes the prorated charge or credit for a plan switch
// mid-cycle. It is a pure calculation: same inputs, same result.
package proration

import (
	"errors"
	"time"

	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	"github.com/shopspring/decimal"
)

var ErrInvalidPeriod = errors.New("invalid_billing_period")

// Params describe one plan switch at a point inside a billing cycle.
type Params struct {
	CurrentPrice decimal.Decimal
	CycleStart   time.Time
	CycleEnd     time.Time
	NewPrice     decimal.Decimal
	Now          time.Time
	Currency     regiondomain.Currency
}

// Result is the transient outcome of a proration computation. It is never
// persisted; the payment session records the charged amount.
type Result struct {
	// ProrationAmount is what the user pays now: the new plan price minus
	// the value of unused time on the current plan, floored at zero.
	ProrationAmount decimal.Decimal `json:"proration_amount"`
	// RemainingValue is the credit from unused time on the current plan.
	RemainingValue decimal.Decimal       `json:"remaining_value"`
	NewPlanPrice   decimal.Decimal       `json:"new_plan_price"`
	Currency       regiondomain.Currency `json:"currency"`
}

// Compute derives the prorated upgrade charge. A freemium current plan has
// zero remaining value, so the full new-plan price is charged.
func Compute(p Params) (Result, error) {
	totalDays := daysBetween(p.CycleStart, p.CycleEnd)
	if totalDays <= 0 {
		return Result{}, ErrInvalidPeriod
	}

	remainingDays := daysBetween(p.Now, p.CycleEnd)
	if remainingDays < 0 {
		remainingDays = 0
	}
	if remainingDays > totalDays {
		remainingDays = totalDays
	}

	places := regiondomain.MinorUnits(p.Currency)

	remaining := decimal.Zero
	if p.CurrentPrice.GreaterThan(decimal.Zero) {
		remaining = p.CurrentPrice.
			Mul(decimal.NewFromInt(int64(remainingDays))).
			Div(decimal.NewFromInt(int64(totalDays)))
	}
	remaining = remaining.Round(places)

	charge := p.NewPrice.Sub(remaining)
	if charge.LessThan(decimal.Zero) {
		charge = decimal.Zero
	}
	charge = charge.Round(places)

	return Result{
		ProrationAmount: charge,
		RemainingValue:  remaining,
		NewPlanPrice:    p.NewPrice.Round(places),
		Currency:        p.Currency,
	}, nil
}

// CourtesyCredit is the unused value surfaced when a paid plan moves to a
// freemium one. It is a credit note applied to a future paid cycle, never a
// cash refund and never a charge.
func CourtesyCredit(currentPrice decimal.Decimal, cycleStart, cycleEnd, now time.Time, currency regiondomain.Currency) decimal.Decimal {
	totalDays := daysBetween(cycleStart, cycleEnd)
	if totalDays <= 0 || currentPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	remainingDays := daysBetween(now, cycleEnd)
	if remainingDays < 0 {
		remainingDays = 0
	}
	if remainingDays > totalDays {
		remainingDays = totalDays
	}

	return currentPrice.
		Mul(decimal.NewFromInt(int64(remainingDays))).
		Div(decimal.NewFromInt(int64(totalDays))).
		Round(regiondomain.MinorUnits(currency))
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}
