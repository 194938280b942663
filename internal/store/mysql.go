package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"finance-datalayer/internal/config"
	"finance-datalayer/internal/logger"
)

const mysqlPingRetries = 30

func NewMySQLStore(ctx context.Context, cfg config.StateStorage) (*SQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	// Retry loop for Ping
	for i := 0; i < mysqlPingRetries; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		logger.Log.Info("Waiting for state DB...", zap.Error(err), zap.Int("attempt", i+1))
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql after retries: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := RunMigrations(ctx, db, "mysql"); err != nil {
		db.Close()
		return nil, err
	}

	logger.Log.Info("Opened state store",
		zap.String("type", "mysql"),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)
	return &SQLStore{db: db, dialect: "mysql"}, nil
}
