package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/transit-tracker/ingest/internal/static/gtfs"
)

// Redis stores each entity kind as a hash of id -> JSON under
// <prefix>:routes, <prefix>:stops and <prefix>:trips.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis connects to addr and verifies the connection
func NewRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	if prefix == "" {
		prefix = "gtfs"
	}
	return &Redis{rdb: rdb, prefix: prefix}, nil
}

func (r *Redis) key(kind string) string {
	return r.prefix + ":" + kind
}

func (r *Redis) SaveEntities(ctx context.Context, data *gtfs.Data) error {
	if data == nil {
		return nil
	}

	routes, err := encodeAll(data.Routes, func(v gtfs.Route) string { return v.RouteID })
	if err != nil {
		return err
	}
	stops, err := encodeAll(data.Stops, func(v gtfs.Stop) string { return v.StopID })
	if err != nil {
		return err
	}
	trips, err := encodeAll(data.Trips, func(v gtfs.Trip) string { return v.TripID })
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(routes) > 0 {
			pipe.HSet(ctx, r.key("routes"), routes)
		}
		if len(stops) > 0 {
			pipe.HSet(ctx, r.key("stops"), stops)
		}
		if len(trips) > 0 {
			pipe.HSet(ctx, r.key("trips"), trips)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save entities to redis: %w", err)
	}
	return nil
}

func (r *Redis) LoadEntities(ctx context.Context) (*gtfs.Data, error) {
	data := &gtfs.Data{}

	var err error
	if data.Routes, err = loadAll[gtfs.Route](ctx, r.rdb, r.key("routes")); err != nil {
		return nil, err
	}
	if data.Stops, err = loadAll[gtfs.Stop](ctx, r.rdb, r.key("stops")); err != nil {
		return nil, err
	}
	if data.Trips, err = loadAll[gtfs.Trip](ctx, r.rdb, r.key("trips")); err != nil {
		return nil, err
	}

	sortData(data)
	return data, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func encodeAll[T any](items []T, id func(T) string) (map[string]any, error) {
	out := make(map[string]any, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", id(item), err)
		}
		out[id(item)] = string(b)
	}
	return out, nil
}

func loadAll[T any](ctx context.Context, rdb *redis.Client, key string) ([]T, error) {
	values, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	items := make([]T, 0, len(values))
	for id, raw := range values {
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("failed to decode %s %s: %w", key, id, err)
		}
		items = append(items, item)
	}
	return items, nil
}
