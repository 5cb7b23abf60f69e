package entitlement

import (
	"github.com/resumeforge/resumeforge/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(service.NewService),
)
