package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/reviewstack/creditledger/internal/clock"
	"github.com/reviewstack/creditledger/internal/config"
	"github.com/reviewstack/creditledger/internal/grants"
	"github.com/reviewstack/creditledger/internal/logger"
	"github.com/reviewstack/creditledger/internal/migration"
	"github.com/reviewstack/creditledger/internal/server"
	"github.com/reviewstack/creditledger/pkg/db"
	"github.com/reviewstack/creditledger/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		telemetry.Module,
		migration.Module,
		server.Module,
		grants.Module,
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
