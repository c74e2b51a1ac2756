package journal

import (
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/offsets"
)

// Config selects the backend.
type Config struct {
	// Type is sqlite, postgres or none.
	Type string `json:"type" mapstructure:"type"`
	// Path is the sqlite file. Empty keeps the journal in memory.
	Path string `json:"path" mapstructure:"path"`
	DSN  string `json:"dsn" mapstructure:"dsn"`
}

// Open connects the configured backend. A postgres backend that cannot be
// reached falls back to sqlite.
func Open(cfg Config, cache *offsets.Cache, log *slog.Logger) (Journal, error) {
	if log == nil {
		log = slog.Default()
	}

	switch cfg.Type {
	case "none":
		log.Info("Session journal disabled")
		return Nop{}, nil
	case "", "sqlite":
		db, err := openSqlite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite journal: %w", err)
		}
		logSqlite(log, cfg.Path)
		return NewStore(db, cache)
	case "postgres":
		db, err := openPostgres(cfg.DSN)
		if err == nil {
			log.Info("Connected to postgres journal")
			return NewStore(db, cache)
		}
		log.Error("Failed to connect to postgres journal, trying SQLite", "error", err)
		db, err = openSqlite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to get local SQLite DB: %w", err)
		}
		logSqlite(log, cfg.Path)
		return NewStore(db, cache)
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}
}

func logSqlite(log *slog.Logger, path string) {
	if path == "" {
		log.Info("Using SQLite session journal in memory")
		return
	}
	log.Info("Using SQLite session journal", "path", path)
}

func openPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	sqlDB.SetMaxOpenConns(4)
	return db, nil
}

func openSqlite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	// one connection, so an in-memory database is shared by every query
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	return db, nil
}
