package alert

import "go.uber.org/fx"

var Module = fx.Module("providers.alert",
	fx.Provide(func() Provider {
		return &NoOpProvider{}
	}),
)
