package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/dutywise/dutywise/internal/clock"
	"github.com/dutywise/dutywise/internal/config"
	"github.com/dutywise/dutywise/internal/logger"
	"github.com/dutywise/dutywise/internal/migration"
	"github.com/dutywise/dutywise/internal/scheduler"
	"github.com/dutywise/dutywise/internal/server"
	"github.com/dutywise/dutywise/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
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
