package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fanbase/internal/clock"
	"github.com/smallbiznis/fanbase/internal/config"
	"github.com/smallbiznis/fanbase/internal/migration"
	"github.com/smallbiznis/fanbase/internal/observability"
	"github.com/smallbiznis/fanbase/internal/scheduler"
	"github.com/smallbiznis/fanbase/internal/server"
	"github.com/smallbiznis/fanbase/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		server.Module,
		scheduler.Module,
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
