package subscription

import (
	"github.com/hakwonlab/wonpay/internal/subscription/repository"
	"github.com/hakwonlab/wonpay/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(
		repository.Provide,
		service.NewCharger,
		service.NewService,
	),
)
