package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/internal/config"
	"github.com/smallbiznis/hostelway/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node) error {
		// Embedded migrations target postgres; other dialects are for
		// tests and use AutoMigrate there.
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		}

		if cfg.DefaultOrgID != 0 {
			return seed.EnsureMainOrgWithID(conn, cfg.DefaultOrgID)
		}
		return seed.EnsureMainOrg(conn, node)
	}),
)
