// Package seed bootstraps the default plan catalog so a fresh install has
// something to sell.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
)

type planSeed struct {
	Name     string
	Cycle    plandomain.BillingCycle
	Freemium bool
	Pricing  []pricingSeed
	Features []featureSeed
}

type pricingSeed struct {
	Region regiondomain.Region
	Amount decimal.Decimal
}

type featureSeed struct {
	Code           string
	Name           string
	LimitType      plandomain.LimitType
	LimitValue     int64
	ResetFrequency plandomain.ResetFrequency
}

func defaultCatalog() []planSeed {
	proFeatures := []featureSeed{
		{Code: "resumes", Name: "Resumes", LimitType: plandomain.LimitUnlimited, ResetFrequency: plandomain.ResetNever},
		{Code: "cover_letters", Name: "Cover Letters", LimitType: plandomain.LimitUnlimited, ResetFrequency: plandomain.ResetNever},
		{Code: "ai_suggestions", Name: "AI Suggestions", LimitType: plandomain.LimitCount, LimitValue: 100, ResetFrequency: plandomain.ResetMonthly},
		{Code: "pdf_export", Name: "PDF Export", LimitType: plandomain.LimitBoolean, LimitValue: 1, ResetFrequency: plandomain.ResetNever},
		{Code: "premium_templates", Name: "Premium Templates", LimitType: plandomain.LimitBoolean, LimitValue: 1, ResetFrequency: plandomain.ResetNever},
	}

	return []planSeed{
		{
			Name:     "Free",
			Cycle:    plandomain.CycleMonthly,
			Freemium: true,
			Pricing: []pricingSeed{
				{Region: regiondomain.RegionGlobal, Amount: decimal.Zero},
				{Region: regiondomain.RegionIndia, Amount: decimal.Zero},
			},
			Features: []featureSeed{
				{Code: "resumes", Name: "Resumes", LimitType: plandomain.LimitCount, LimitValue: 2, ResetFrequency: plandomain.ResetMonthly},
				{Code: "cover_letters", Name: "Cover Letters", LimitType: plandomain.LimitCount, LimitValue: 1, ResetFrequency: plandomain.ResetMonthly},
				{Code: "ai_suggestions", Name: "AI Suggestions", LimitType: plandomain.LimitCount, LimitValue: 5, ResetFrequency: plandomain.ResetMonthly},
				{Code: "pdf_export", Name: "PDF Export", LimitType: plandomain.LimitBoolean, LimitValue: 1, ResetFrequency: plandomain.ResetNever},
			},
		},
		{
			Name:  "Pro Monthly",
			Cycle: plandomain.CycleMonthly,
			Pricing: []pricingSeed{
				{Region: regiondomain.RegionGlobal, Amount: decimal.RequireFromString("10.00")},
				{Region: regiondomain.RegionIndia, Amount: decimal.RequireFromString("499")},
			},
			Features: proFeatures,
		},
		{
			Name:  "Pro Yearly",
			Cycle: plandomain.CycleYearly,
			Pricing: []pricingSeed{
				{Region: regiondomain.RegionGlobal, Amount: decimal.RequireFromString("96.00")},
				{Region: regiondomain.RegionIndia, Amount: decimal.RequireFromString("4788")},
			},
			Features: proFeatures,
		},
	}
}

// EnsureDefaultCatalog inserts the default plans when they are missing.
// Existing plans are left untouched, including operator-edited pricing.
func EnsureDefaultCatalog(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range defaultCatalog() {
			if err := ensurePlanTx(ctx, tx, node, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensurePlanTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, p planSeed) error {
	code := slug.Make(p.Name)

	var existing plandomain.SubscriptionPlan
	err := tx.WithContext(ctx).Where("code = ?", code).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	plan := plandomain.SubscriptionPlan{
		ID:           node.Generate(),
		Code:         code,
		Name:         p.Name,
		BillingCycle: p.Cycle,
		Freemium:     p.Freemium,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&plan).Error; err != nil {
		return err
	}

	for _, price := range p.Pricing {
		row := plandomain.PlanPricing{
			ID:        node.Generate(),
			PlanID:    plan.ID,
			Region:    price.Region,
			Currency:  regiondomain.CurrencyFor(price.Region),
			Amount:    price.Amount,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
	}

	for _, feature := range p.Features {
		row := plandomain.PlanFeature{
			ID:             node.Generate(),
			PlanID:         plan.ID,
			Code:           feature.Code,
			Name:           feature.Name,
			LimitType:      feature.LimitType,
			LimitValue:     feature.LimitValue,
			ResetFrequency: feature.ResetFrequency,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
	}

	return nil
}
