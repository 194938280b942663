package store

import (
	"context"
	"fmt"

	"finance-datalayer/internal/config"
)

// Open builds the Store selected by cfg.Type: "sqlite" (default), "mysql"
// or "memory".
func Open(ctx context.Context, cfg config.StateStorage) (Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		path := cfg.FilePath
		if path == "" {
			path = "finance-datalayer.db"
		}
		return NewSQLiteStore(ctx, path)
	case "mysql":
		return NewMySQLStore(ctx, cfg)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported state storage type: %q", cfg.Type)
	}
}
