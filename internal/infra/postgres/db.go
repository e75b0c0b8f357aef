package postgres

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open connects to Postgres, or to a SQLite file when dsn starts with
// "sqlite:" or "file:". SQLite serves local runs and tests.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:  NewGormLogger(200 * time.Millisecond),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var (
		db  *gorm.DB
		err error
	)
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		db, err = gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), cfg)
	case strings.HasPrefix(dsn, "file:"):
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	default:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("Open: connecting: %w", err)
	}

	if IsSQLite(db) {
		// One writer at a time; SQLite locks the whole file.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("Open: sql handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("Open: enabling foreign keys: %w", err)
		}
	}
	return db, nil
}

// IsSQLite reports whether db talks to SQLite.
func IsSQLite(db *gorm.DB) bool {
	return db.Dialector.Name() == "sqlite"
}

// AutoMigrate creates the core tables from the row models. Postgres
// deployments use the SQL migrations instead; this serves SQLite.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&DecisionRow{}, &ExpenseRow{}, &SyncRunRow{}); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
