// Package server exposes the subscription surface over HTTP. Identity is
// resolved upstream; handlers read the user ID from the request context.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/resumeforge/resumeforge/internal/config"
	entitlementdomain "github.com/resumeforge/resumeforge/internal/entitlement/domain"
	"github.com/resumeforge/resumeforge/internal/observability"
	obsmiddleware "github.com/resumeforge/resumeforge/internal/observability/logger"
	obsmetrics "github.com/resumeforge/resumeforge/internal/observability/metrics"
	obstracing "github.com/resumeforge/resumeforge/internal/observability/tracing"
	paymentdomain "github.com/resumeforge/resumeforge/internal/payment/domain"
	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	subscriptiondomain "github.com/resumeforge/resumeforge/internal/subscription/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	planSvc         plandomain.Service
	regions         regiondomain.Resolver
	subscriptionSvc subscriptiondomain.Service
	entitlementSvc  entitlementdomain.Service
	paymentSvc      paymentdomain.Service
}

type Params struct {
	fx.In

	Engine *gin.Engine
	Cfg    config.Config
	DB     *gorm.DB
	GenID  *snowflake.Node

	PlanSvc         plandomain.Service
	Regions         regiondomain.Resolver
	SubscriptionSvc subscriptiondomain.Service
	EntitlementSvc  entitlementdomain.Service
	PaymentSvc      paymentdomain.Service
}

func NewServer(p Params) *Server {
	return &Server{
		engine:          p.Engine,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		planSvc:         p.PlanSvc,
		regions:         p.Regions,
		subscriptionSvc: p.SubscriptionSvc,
		entitlementSvc:  p.EntitlementSvc,
		paymentSvc:      p.PaymentSvc,
	}
}

func registerRoutes(s *Server) {
	s.RegisterRoutes()
}

// RegisterRoutes mounts the versioned API.
func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Plans --------
	v1.GET("/plans", s.ListPlans)
	v1.GET("/plans/:id/features", s.ListPlanFeatures)

	// -------- Subscription --------
	sub := v1.Group("/subscription", s.UserContext())
	sub.GET("", s.GetSubscription)
	sub.POST("", s.Subscribe)
	sub.POST("/upgrade", s.UpgradeSubscription)
	sub.POST("/downgrade", s.DowngradeSubscription)
	sub.POST("/cancel", s.CancelSubscription)
	sub.GET("/pending-change", s.GetPendingChange)
	sub.DELETE("/pending-change", s.CancelPendingChange)
	sub.GET("/entitlements", s.ListEntitlements)
	sub.GET("/entitlements/:code", s.CheckEntitlement)

	// -------- Payment Webhooks --------
	v1.POST("/webhooks/payment/:provider", s.HandlePaymentWebhook)
}
