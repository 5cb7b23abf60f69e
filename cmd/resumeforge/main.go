package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/resumeforge/resumeforge/internal/clock"
	"github.com/resumeforge/resumeforge/internal/config"
	"github.com/resumeforge/resumeforge/internal/entitlement"
	"github.com/resumeforge/resumeforge/internal/logger"
	"github.com/resumeforge/resumeforge/internal/migration"
	"github.com/resumeforge/resumeforge/internal/observability"
	"github.com/resumeforge/resumeforge/internal/payment"
	"github.com/resumeforge/resumeforge/internal/plan"
	"github.com/resumeforge/resumeforge/internal/region"
	"github.com/resumeforge/resumeforge/internal/scheduler"
	"github.com/resumeforge/resumeforge/internal/server"
	"github.com/resumeforge/resumeforge/internal/subscription"
	"github.com/resumeforge/resumeforge/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		region.Module,
		plan.Module,
		subscription.Module,
		payment.Module,
		entitlement.Module,

		// Surfaces
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
