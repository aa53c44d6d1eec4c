package settlement

import (
	"github.com/hakwonlab/wonpay/internal/settlement/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement",
	fx.Provide(repository.Provide),
)
