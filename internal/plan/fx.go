package plan

import (
	"github.com/resumeforge/resumeforge/internal/plan/repository"
	"github.com/resumeforge/resumeforge/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.catalog",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
