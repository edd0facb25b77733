package app

import (
	"context"

	"github.com/fiffu/repowatch/config"
	"github.com/fiffu/repowatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDatabase(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *gorm.DB {
	gormCfg := &gorm.Config{}
	if cfg.Env == "production" {
		gormCfg.Logger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), gormCfg)
	if err != nil {
		log.Sugar().Panicw("failed to connect database", "path", cfg.DatabasePath, "err", err)
	}
	log.Info("Database started")

	log.Info("Starting migrations")
	if err := Migrate(db); err != nil {
		log.Sugar().Panicw("migration failed", "err", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Notifier{},
		&models.NotifierConfirmation{},
		&models.Token{},
		&models.Subscription{},
		&models.CacheEntry{},
	)
}
