package proration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompute_MidCycleUpgrade(t *testing.T) {
	// $10 plan, 30-day cycle, upgrading to $25 with 15 days left:
	// credit $5.00, pay $20.00.
	cycleStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cycleEnd := cycleStart.AddDate(0, 0, 30)
	now := cycleStart.AddDate(0, 0, 15)

	res, err := Compute(Params{
		CurrentPrice: d("10.00"),
		CycleStart:   cycleStart,
		CycleEnd:     cycleEnd,
		NewPrice:     d("25.00"),
		Now:          now,
		Currency:     regiondomain.CurrencyUSD,
	})
	require.NoError(t, err)

	assert.True(t, res.RemainingValue.Equal(d("5.00")), "remaining = %s", res.RemainingValue)
	assert.True(t, res.ProrationAmount.Equal(d("20.00")), "charge = %s", res.ProrationAmount)
	assert.True(t, res.NewPlanPrice.Equal(d("25.00")))
	assert.Equal(t, regiondomain.CurrencyUSD, res.Currency)
}

func TestCompute_CycleBoundaries(t *testing.T) {
	cycleStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cycleEnd := cycleStart.AddDate(0, 0, 30)

	tests := []struct {
		name          string
		now           time.Time
		wantRemaining string
		wantCharge    string
	}{
		{"at cycle start full credit", cycleStart, "10.00", "15.00"},
		{"at cycle end no credit", cycleEnd, "0", "25.00"},
		{"after cycle end clamps to zero", cycleEnd.AddDate(0, 0, 3), "0", "25.00"},
		{"before cycle start clamps to full", cycleStart.AddDate(0, 0, -2), "10.00", "15.00"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Compute(Params{
				CurrentPrice: d("10.00"),
				CycleStart:   cycleStart,
				CycleEnd:     cycleEnd,
				NewPrice:     d("25.00"),
				Now:          tc.now,
				Currency:     regiondomain.CurrencyUSD,
			})
			require.NoError(t, err)
			assert.True(t, res.RemainingValue.Equal(d(tc.wantRemaining)), "remaining = %s", res.RemainingValue)
			assert.True(t, res.ProrationAmount.Equal(d(tc.wantCharge)), "charge = %s", res.ProrationAmount)
		})
	}
}

func TestCompute_RoundsHalfUpAtMinorUnits(t *testing.T) {
	// 10.00 over a 30-day cycle with 7 days left: 10 * 7/30 = 2.333...,
	// rounded to 2.33 at USD minor units.
	cycleStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cycleEnd := cycleStart.AddDate(0, 0, 30)
	now := cycleEnd.AddDate(0, 0, -7)

	res, err := Compute(Params{
		CurrentPrice: d("10.00"),
		CycleStart:   cycleStart,
		CycleEnd:     cycleEnd,
		NewPrice:     d("25.00"),
		Now:          now,
		Currency:     regiondomain.CurrencyUSD,
	})
	require.NoError(t, err)
	assert.True(t, res.RemainingValue.Equal(d("2.33")), "remaining = %s", res.RemainingValue)
	assert.True(t, res.ProrationAmount.Equal(d("22.67")), "charge = %s", res.ProrationAmount)

	// 10.00 * 15.5/31... use a half-cent case: 1.00 * 15/30 at half-up.
	// 0.125 remaining rounds to 0.13, not 0.12.
	res, err = Compute(Params{
		CurrentPrice: d("0.25"),
		CycleStart:   cycleStart,
		CycleEnd:     cycleEnd,
		NewPrice:     d("25.00"),
		Now:          cycleStart.AddDate(0, 0, 15),
		Currency:     regiondomain.CurrencyUSD,
	})
	require.NoError(t, err)
	assert.True(t, res.RemainingValue.Equal(d("0.13")), "remaining = %s", res.RemainingValue)
}

func TestCompute_INRHasNoMinorUnits(t *testing.T) {
	// INR rounds to whole rupees: 499 * 11/30 = 182.966... -> 183.
	cycleStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cycleEnd := cycleStart.AddDate(0, 0, 30)
	now := cycleEnd.AddDate(0, 0, -11)

	res, err := Compute(Params{
		CurrentPrice: d("499"),
		CycleStart:   cycleStart,
		CycleEnd:     cycleEnd,
		NewPrice:     d("999"),
		Now:          now,
		Currency:     regiondomain.CurrencyINR,
	})
	require.NoError(t, err)
	assert.True(t, res.RemainingValue.Equal(d("183")), "remaining = %s", res.RemainingValue)
	assert.True(t, res.ProrationAmount.Equal(d("816")), "charge = %s", res.ProrationAmount)
}

func TestCompute_FreemiumCurrentPlanChargesFullPrice(t *testing.T) {
	cycleStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cycleEnd := cycleStart.AddDate(0, 1, 0)

	res, err := Compute(Params{
		CurrentPrice: decimal.Zero,
		CycleStart:   cycleStart,
		CycleEnd:     cycleEnd,
		NewPrice:     d("10.00"),
		Now:          cycleStart.AddDate(0, 0, 12),
		Currency:     regiondomain.CurrencyUSD,
	})
	require.NoError(t, err)
	assert.True(t, res.RemainingValue.IsZero())
	assert.True(t, res.ProrationAmount.Equal(d("10.00")))
}

func TestCompute_CreditLargerThanNewPriceFloorsAtZero(t *testing.T) {
	cycleStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cycleEnd := cycleStart.AddDate(0, 0, 30)

	res, err := Compute(Params{
		CurrentPrice: d("96.00"),
		CycleStart:   cycleStart,
		CycleEnd:     cycleEnd,
		NewPrice:     d("10.00"),
		Now:          cycleStart,
		Currency:     regiondomain.CurrencyUSD,
	})
	require.NoError(t, err)
	assert.True(t, res.ProrationAmount.IsZero(), "charge = %s", res.ProrationAmount)
	assert.True(t, res.RemainingValue.Equal(d("96.00")))
}

func TestCompute_InvalidPeriod(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := Compute(Params{
		CurrentPrice: d("10.00"),
		CycleStart:   at,
		CycleEnd:     at,
		NewPrice:     d("25.00"),
		Now:          at,
		Currency:     regiondomain.CurrencyUSD,
	})
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = Compute(Params{
		CurrentPrice: d("10.00"),
		CycleStart:   at,
		CycleEnd:     at.AddDate(0, 0, -30),
		NewPrice:     d("25.00"),
		Now:          at,
		Currency:     regiondomain.CurrencyUSD,
	})
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestCompute_Deterministic(t *testing.T) {
	cycleStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := Params{
		CurrentPrice: d("10.00"),
		CycleStart:   cycleStart,
		CycleEnd:     cycleStart.AddDate(0, 0, 30),
		NewPrice:     d("25.00"),
		Now:          cycleStart.AddDate(0, 0, 13),
		Currency:     regiondomain.CurrencyUSD,
	}

	first, err := Compute(p)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Compute(p)
		require.NoError(t, err)
		assert.True(t, first.ProrationAmount.Equal(again.ProrationAmount))
		assert.True(t, first.RemainingValue.Equal(again.RemainingValue))
	}
}

func TestCourtesyCredit(t *testing.T) {
	cycleStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cycleEnd := cycleStart.AddDate(0, 0, 30)

	credit := CourtesyCredit(d("10.00"), cycleStart, cycleEnd, cycleStart.AddDate(0, 0, 15), regiondomain.CurrencyUSD)
	assert.True(t, credit.Equal(d("5.00")), "credit = %s", credit)

	// Freemium plans never accrue credit.
	credit = CourtesyCredit(decimal.Zero, cycleStart, cycleEnd, cycleStart, regiondomain.CurrencyUSD)
	assert.True(t, credit.IsZero())

	// A lapsed cycle has no unused value left.
	credit = CourtesyCredit(d("10.00"), cycleStart, cycleEnd, cycleEnd.AddDate(0, 0, 1), regiondomain.CurrencyUSD)
	assert.True(t, credit.IsZero())
}
