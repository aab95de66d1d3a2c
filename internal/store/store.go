// Package store persists parsed reference entities so the lookup cache can be
// rebuilt from everything loaded so far.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/transit-tracker/ingest/internal/config"
	"github.com/transit-tracker/ingest/internal/db"
	"github.com/transit-tracker/ingest/internal/static/gtfs"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name
var ErrUnknownDriver = errors.New("unknown store driver")

// EntityStore persists routes, stops and trips keyed by their ids.
// SaveEntities upserts; LoadEntities returns everything stored.
type EntityStore interface {
	SaveEntities(ctx context.Context, data *gtfs.Data) error
	LoadEntities(ctx context.Context) (*gtfs.Data, error)
	Close() error
}

// Open connects the store selected by cfg.Driver
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (EntityStore, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		database, err := db.Connect(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, err
		}
		return database, nil
	case "postgres":
		return NewPostgres(ctx, cfg.PostgresURL)
	case "redis":
		return NewRedis(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
