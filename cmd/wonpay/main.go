package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/hakwonlab/wonpay/internal/clock"
	"github.com/hakwonlab/wonpay/internal/config"
	"github.com/hakwonlab/wonpay/internal/migration"
	"github.com/hakwonlab/wonpay/internal/observability"
	"github.com/hakwonlab/wonpay/internal/plan"
	"github.com/hakwonlab/wonpay/internal/portone"
	"github.com/hakwonlab/wonpay/internal/providers/alert"
	"github.com/hakwonlab/wonpay/internal/ratelimit"
	"github.com/hakwonlab/wonpay/internal/scheduler"
	"github.com/hakwonlab/wonpay/internal/server"
	"github.com/hakwonlab/wonpay/internal/settlement"
	"github.com/hakwonlab/wonpay/internal/subscription"
	syncmodule "github.com/hakwonlab/wonpay/internal/sync"
	"github.com/hakwonlab/wonpay/internal/usage"
	"github.com/hakwonlab/wonpay/internal/usage/snapshot"
	"github.com/hakwonlab/wonpay/internal/webhook"
	"github.com/hakwonlab/wonpay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		db.Module,
		migration.Module,
		ratelimit.Module,
		alert.Module,
		plan.Module,
		portone.Module,

		// Functional domains
		settlement.Module,
		webhook.Module,
		syncmodule.Module,
		subscription.Module,
		usage.Module,
		snapshot.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
