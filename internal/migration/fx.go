package migration

import (
	"strings"

	"github.com/reviewstack/creditledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		// The embedded migrations target postgres. Other dialects
		// (sqlite in tests, mysql) manage schema through AutoMigrate or
		// out-of-band tooling.
		if !strings.EqualFold(cfg.DBType, "postgres") {
			log.Named("migrations").Info("skipping embedded migrations",
				zap.String("db_type", cfg.DBType),
			)
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
