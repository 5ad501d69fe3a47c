package bookmark

import (
	"context"
	"fmt"
)

// Backend names accepted by Open
const (
	BackendBolt     = "bolt"
	BackendPostgres = DialectPostgres
	BackendSQLite   = DialectSQLite
	BackendMemory   = "memory"
)

// Config selects and locates the bookmark backend
type Config struct {
	Backend string // bolt, postgres, sqlite or memory
	Path    string // BoltDB file (bolt) or database file (sqlite)
	DSN     string // Connection string (postgres)
}

// Open creates the Store described by cfg
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendBolt, "":
		return NewBoltDBStore(cfg.Path)
	case BackendPostgres:
		return NewSQLStore(ctx, DialectPostgres, cfg.DSN)
	case BackendSQLite:
		return NewSQLStore(ctx, DialectSQLite, cfg.Path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown bookmark backend: %s", cfg.Backend)
	}
}
