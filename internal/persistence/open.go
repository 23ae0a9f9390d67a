package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gosight/slidetrack/internal/config"
)

// Open builds a Store on the backend named in cfg
func Open(ctx context.Context, cfg config.PersistenceConfig, tabID string) (*Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewStore(NewMemoryKV(nil), NewMemoryKV(nil), tabID, cfg.TabTTL), nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s := NewStore(
			NewRedisKV(rdb, cfg.KeyPrefix+"identity:"),
			NewRedisKV(rdb, cfg.KeyPrefix+"history:"),
			tabID, cfg.TabTTL,
		)
		s.closers = append(s.closers, rdb.Close)
		return s, nil

	case "sqlite":
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		identity, err := NewSQLiteKV(ctx, db, "identity_kv")
		if err != nil {
			db.Close()
			return nil, err
		}
		history, err := NewSQLiteKV(ctx, db, "history_kv")
		if err != nil {
			db.Close()
			return nil, err
		}
		s := NewStore(identity, history, tabID, cfg.TabTTL)
		s.closers = append(s.closers, db.Close)
		return s, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		identity, err := NewPostgresKV(ctx, pool, "slidetrack_identity_kv")
		if err != nil {
			pool.Close()
			return nil, err
		}
		history, err := NewPostgresKV(ctx, pool, "slidetrack_history_kv")
		if err != nil {
			pool.Close()
			return nil, err
		}
		s := NewStore(identity, history, tabID, cfg.TabTTL)
		s.closers = append(s.closers, func() error {
			pool.Close()
			return nil
		})
		return s, nil
	}

	return nil, fmt.Errorf("unknown persistence backend %q", cfg.Backend)
}
