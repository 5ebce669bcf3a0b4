package store

import (
	"context"
	"fmt"
)

// Supported store drivers.
const (
	DriverSQLite = "sqlite"
	DriverArango = "arangodb"
)

// Config selects and configures a Store backend.
type Config struct {
	Driver string
	DBPath string
	Arango ArangoConfig
}

// Open creates the configured backend and runs its migrations.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)

	switch cfg.Driver {
	case "", DriverSQLite:
		s, err = NewSQLiteStore(cfg.DBPath)
	case DriverArango:
		s, err = NewArangoStore(cfg.Arango)
	default:
		return nil, fmt.Errorf("unknown store driver: %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate %s store: %w", cfg.Driver, err)
	}
	return s, nil
}
