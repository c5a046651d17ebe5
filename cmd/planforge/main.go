package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/planforge/internal/config"
	"github.com/smallbiznis/planforge/internal/migration"
	"github.com/smallbiznis/planforge/internal/observability"
	"github.com/smallbiznis/planforge/internal/plan"
	"github.com/smallbiznis/planforge/internal/ratelimit"
	"github.com/smallbiznis/planforge/internal/server"
	"github.com/smallbiznis/planforge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		plan.Module,
		ratelimit.Module,
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
