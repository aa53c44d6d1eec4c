package observability

import (
	"github.com/hakwonlab/wonpay/internal/config"
	"github.com/hakwonlab/wonpay/internal/observability/logger"
	"github.com/hakwonlab/wonpay/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		func(cfg config.Config) logger.Config {
			return logger.Config{
				ServiceName: cfg.AppName,
				Environment: cfg.Environment,
				Version:     cfg.AppVersion,
				Level:       cfg.LogLevel,
				Format:      cfg.LogFormat,
			}
		},
		logger.New,
		metrics.New,
	),
)
