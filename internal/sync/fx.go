package sync

import (
	"github.com/hakwonlab/wonpay/internal/sync/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sync",
	fx.Provide(service.NewService),
)
