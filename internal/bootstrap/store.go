// Package bootstrap opens the credential store selected by STORE_DRIVER.
// Both binaries share it so the API and authctl always agree on where accounts live.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/db"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/geocoder89/authhub/internal/redisclient"
	"github.com/geocoder89/authhub/internal/repo/memory"
	"github.com/geocoder89/authhub/internal/repo/postgres"
	"github.com/geocoder89/authhub/internal/repo/redisstore"
)

type Store interface {
	user.Store
	Ping(ctx context.Context) error
}

// OpenStore connects the configured adapter, runs Postgres migrations and makes
// sure the email index exists. The returned close func is never nil.
func OpenStore(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (Store, func(), error) {
	noop := func() {}
	var (
		store   Store
		closeFn = noop
	)

	switch cfg.StoreDriver {
	case config.StoreMemory:
		store = memory.NewUsersRepo()

	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
		if err != nil {
			return nil, noop, fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, noop, err
		}
		store = postgres.NewUsersRepo(pool, prom)
		closeFn = pool.Close

	case config.StoreRedis:
		rc, err := redisclient.Open(ctx, redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, noop, err
		}
		store = redisstore.NewUsersRepo(rc.Raw(), redisstore.DefaultPrefix, prom)
		closeFn = func() { _ = rc.Close() }

	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if err := store.EnsureUniqueIndex(ctx, "email"); err != nil {
		closeFn()
		return nil, noop, fmt.Errorf("ensure email index: %w", err)
	}

	log.Info("credential store ready", "driver", cfg.StoreDriver)
	return store, closeFn, nil
}
