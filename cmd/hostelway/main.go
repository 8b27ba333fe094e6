package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/internal/accesscode"
	"github.com/smallbiznis/hostelway/internal/clock"
	"github.com/smallbiznis/hostelway/internal/config"
	"github.com/smallbiznis/hostelway/internal/logger"
	"github.com/smallbiznis/hostelway/internal/migration"
	"github.com/smallbiznis/hostelway/internal/notification"
	"github.com/smallbiznis/hostelway/internal/observability"
	"github.com/smallbiznis/hostelway/internal/paymentlink"
	"github.com/smallbiznis/hostelway/internal/providers"
	"github.com/smallbiznis/hostelway/internal/reservation"
	"github.com/smallbiznis/hostelway/internal/scheduler"
	"github.com/smallbiznis/hostelway/internal/server"
	"github.com/smallbiznis/hostelway/internal/settings"
	"github.com/smallbiznis/hostelway/internal/webhook"
	"github.com/smallbiznis/hostelway/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		settings.Module,
		providers.Module,
		reservation.Module,
		notification.Module,
		accesscode.Module,
		paymentlink.Module,
		webhook.Module,
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
