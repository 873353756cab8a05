package migration

import (
	"github.com/metergate/metergate/internal/config"
	"github.com/metergate/metergate/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		if err := seed.EnsureDefaultTiers(conn); err != nil {
			return err
		}
		if cfg.Environment == "development" {
			return seed.EnsureDemoData(conn, cfg.DefaultUpstreamURL)
		}
		return nil
	}),
)
