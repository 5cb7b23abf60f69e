package domain

import (
	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
	"github.com/shopspring/decimal"
)

// ClassifyChange orders a plan change by comparing the two prices in the
// user's resolved region. Only a strictly higher target price classifies as
// an upgrade; equal prices route through the downgrade path, which charges
// nothing and defers to cycle end.
func ClassifyChange(current, target plandomain.ResolvedPrice) ChangeType {
	if target.Amount.Cmp(current.Amount) > 0 {
		return ChangeTypeUpgrade
	}
	return ChangeTypeDowngrade
}

// IsFree reports whether a resolved price represents a no-charge plan.
func IsFree(p plandomain.ResolvedPrice) bool {
	return p.Amount.Cmp(decimal.Zero) <= 0
}
