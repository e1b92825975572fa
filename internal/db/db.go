package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fleet-history-backend/config"
	"fleet-history-backend/internal/model"
)

// Init opens the configured database and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	zap.S().Infof("Database initialization complete (driver %s)", cfg.Driver)
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	zap.S().Infof("Running database migrations...")
	if err := db.AutoMigrate(
		&model.Machine{},
		&model.EventType{},
		&model.NotificationIntent{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		if err := applyPostgresDDL(db); err != nil {
			zap.S().Warnf("failed to apply some Postgres DDL: %v. Continuing without them.", err)
		}
	}
	return nil
}

func applyPostgresDDL(db *gorm.DB) error {
	ddls := []string{
		// History filters read inside the arrays.
		"CREATE INDEX IF NOT EXISTS idx_machines_events_history ON machines USING GIN (events_history jsonb_path_ops);",
		"CREATE INDEX IF NOT EXISTS idx_machines_quick_checks ON machines USING GIN (quick_checks jsonb_path_ops);",
		"ALTER TABLE machines DROP CONSTRAINT IF EXISTS machines_operating_hours_non_negative;",
		"ALTER TABLE machines ADD CONSTRAINT machines_operating_hours_non_negative CHECK (operating_hours >= 0);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
