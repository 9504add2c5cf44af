package database

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"picshare/internal/domain"

	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Connect opens Postgres for postgres:// DSNs and SQLite (pure Go driver)
// for anything else, e.g. a file path or ":memory:".
func Connect(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		// SQLite compares timestamps as text, so every stored time is UTC.
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	if IsPostgres(dsn) {
		slog.Info("connecting to PostgreSQL")
		return gorm.Open(postgres.Open(dsn), cfg)
	}

	slog.Info("using SQLite", "dsn", dsn)
	db, err := gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        dsn,
		}),
		cfg,
	)
	if err != nil {
		return nil, err
	}

	// :memory: databases are per-connection; keep a single one so every
	// query sees the same schema.
	if strings.Contains(dsn, ":memory:") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Models lists every persisted entity in dependency order.
func Models() []any {
	return []any{
		&domain.User{},
		&domain.RefreshToken{},
		&domain.Post{},
		&domain.PostLike{},
		&domain.Notification{},
	}
}

func Migrate(db *gorm.DB) error {
	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("migrate %T: %w", m, err)
		}
	}
	return nil
}
