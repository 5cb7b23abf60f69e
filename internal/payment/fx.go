package payment

import (
	"github.com/resumeforge/resumeforge/internal/config"
	"github.com/resumeforge/resumeforge/internal/payment/adapters"
	"github.com/resumeforge/resumeforge/internal/payment/adapters/hosted"
	paymentdomain "github.com/resumeforge/resumeforge/internal/payment/domain"
	"github.com/resumeforge/resumeforge/internal/payment/repository"
	"github.com/resumeforge/resumeforge/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			hosted.NewFactory(),
		)
	}),
	fx.Provide(func(registry *adapters.Registry, cfg config.Config) (paymentdomain.PaymentAdapter, error) {
		return registry.NewAdapter(cfg.PaymentProvider, paymentdomain.AdapterConfig{
			Provider:      cfg.PaymentProvider,
			SigningSecret: cfg.PaymentSigningSecret,
			CheckoutURL:   cfg.PaymentCheckoutURL,
			SuccessURL:    cfg.PaymentSuccessURL,
			CancelURL:     cfg.PaymentCancelURL,
		})
	}),
	fx.Provide(webhook.NewService),
)
