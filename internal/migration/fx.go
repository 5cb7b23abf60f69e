package migration

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/resumeforge/resumeforge/internal/config"
	paymentdomain "github.com/resumeforge/resumeforge/internal/payment/domain"
	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
	"github.com/resumeforge/resumeforge/internal/seed"
	subscriptiondomain "github.com/resumeforge/resumeforge/internal/subscription/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, genID *snowflake.Node) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Local sqlite/mysql mode: derive the schema from the models.
			if err := conn.AutoMigrate(
				&plandomain.SubscriptionPlan{},
				&plandomain.PlanPricing{},
				&plandomain.PlanFeature{},
				&subscriptiondomain.UserSubscription{},
				&paymentdomain.CheckoutSession{},
				&paymentdomain.WebhookEvent{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedDefaultCatalog {
			return seed.EnsureDefaultCatalog(conn, genID)
		}
		return nil
	}),
)
