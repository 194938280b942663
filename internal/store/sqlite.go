package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"finance-datalayer/internal/logger"
)

// NewSQLiteStore opens (creating if needed) the database file at path and
// migrates it.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY and keeps
	// ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := RunMigrations(ctx, db, "sqlite3"); err != nil {
		db.Close()
		return nil, err
	}

	logger.Log.Info("Opened state store", zap.String("type", "sqlite"), zap.String("path", path))
	return &SQLStore{db: db, dialect: "sqlite3"}, nil
}
