package subscription

import (
	"github.com/resumeforge/resumeforge/internal/subscription/repository"
	"github.com/resumeforge/resumeforge/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
