package database

import (
	"fmt"
	"strings"
	"time"

	"hospital-waiting-room/internal/config"
	"hospital-waiting-room/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the visit record store. STORE_URI picks the dialect:
// postgres:// and postgresql:// go to Postgres, mysql:// or a bare DSN to MySQL.
// Without STORE_URI the DSN is assembled from the DB_* settings.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dialector := Dialector(cfg.Database)

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.Server.GinMode == "release" {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Set connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("dialect", dialector.Name()).Msg("Successfully connected to database")
	return db, nil
}

// Dialector resolves the gorm dialector for the configured store
func Dialector(cfg config.DatabaseConfig) gorm.Dialector {
	uri := strings.TrimSpace(cfg.URI)
	switch {
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return postgres.Open(uri)
	case strings.HasPrefix(uri, "mysql://"):
		return mysql.Open(strings.TrimPrefix(uri, "mysql://"))
	case uri != "":
		return mysql.Open(uri)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)
	return mysql.Open(dsn)
}

// Migrate creates or updates every table the service owns
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Patient{},
		&models.Visit{},
		&models.WaitingRoomState{},
		&models.LedgerReceipt{},
		&models.AuditLog{},
	)
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
