package webhook

import (
	"github.com/hakwonlab/wonpay/internal/webhook/repository"
	"github.com/hakwonlab/wonpay/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
