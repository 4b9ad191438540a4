package database

import (
	"fmt"
	"time"

	"portal/internal/config"
	"portal/internal/models"
	"portal/internal/utils"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sessionLookupPattern keeps per-request session reads out of the SQL log
const sessionLookupPattern = `FROM "sessions" WHERE`

// Open connects to postgres, configures the pool and migrates the schema.
// The caller owns the returned handle and must Close it on shutdown.
func Open(cfg config.DatabaseConfig, release bool, log *zap.Logger) (*gorm.DB, error) {
	level := logger.Info
	if release {
		level = logger.Warn
	}

	gormConfig := &gorm.Config{
		Logger:                                   utils.NewGormLogger(log, level, sessionLookupPattern),
		PrepareStmt:                              true,  // Enable prepared statement cache
		SkipDefaultTransaction:                   false, // Keep default transaction for safety
		DisableForeignKeyConstraintWhenMigrating: false,
	}

	// Open connection with retry logic
	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < cfg.ConnectRetries; i++ {
		db, err = gorm.Open(postgres.Open(cfg.URL), gormConfig)
		if err == nil {
			break
		}
		log.Warn("database connection attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		if i < cfg.ConnectRetries-1 {
			log.Info("retrying database connection", zap.Duration("delay", cfg.RetryDelay))
			time.Sleep(cfg.RetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", cfg.ConnectRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	log.Info("database connection established and migrations completed")
	return db, nil
}

// Migrate creates or updates the tables the application owns
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Session{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks that the database is reachable
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Ping()
}
