package usage

import (
	"github.com/hakwonlab/wonpay/internal/usage/limits"
	"github.com/hakwonlab/wonpay/internal/usage/repository"
	"github.com/hakwonlab/wonpay/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage",
	fx.Provide(
		repository.Provide,
		service.NewService,
		limits.NewEnforcer,
	),
)
