package persistence

import (
	"context"
	"fmt"

	"github.com/turtacn/argproxy/internal/config"
	"github.com/turtacn/argproxy/internal/domain/repository"
	"github.com/turtacn/argproxy/internal/domain/service"
	"github.com/turtacn/argproxy/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/argproxy/internal/infrastructure/persistence/redis"
	"github.com/turtacn/argproxy/pkg/constants"
	"github.com/turtacn/argproxy/pkg/errors"
	"github.com/turtacn/argproxy/pkg/logger"
)

// LinkStoreHandle is an opened link store plus the connection that backs it.
type LinkStoreHandle struct {
	Store   repository.LinkStore
	Health  repository.HealthChecker
	Backend string
	close   func() error
}

// Close releases the backing connection.
func (h *LinkStoreHandle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// OpenLinkStore connects to the backend named by cfg.Cache.Backend and decorates it with
// metrics and, when cache.local_ttl is set, the in-process tier.
func OpenLinkStore(ctx context.Context, cfg *config.Config, metrics service.Metrics, log logger.Logger) (*LinkStoreHandle, error) {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}

	var (
		base    repository.LinkStore
		closeFn func() error
	)
	switch cfg.Cache.Backend {
	case constants.CacheBackendRedis:
		conn := redis.NewRedisConnection(&cfg.Redis, log)
		if err := conn.Connect(ctx); err != nil {
			return nil, err
		}
		base = redis.NewLinkStore(conn.GetClient(), cfg.Cache.KeyPrefix, cfg.Cache.RecordTTL, log)
		closeFn = conn.Close

	case constants.CacheBackendPostgres:
		db, err := postgres.NewDBConnection(ctx, &cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		pgStore := postgres.NewLinkStore(db.Pool(), log)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		base = pgStore
		closeFn = func() error { db.Close(); return nil }

	default:
		return nil, errors.ErrInvalidConfig(fmt.Sprintf("unknown cache.backend %q", cfg.Cache.Backend))
	}

	instrumented := NewInstrumentedLinkStore(base, cfg.Cache.Backend, metrics)
	handle := &LinkStoreHandle{
		Store:   instrumented,
		Health:  instrumented,
		Backend: cfg.Cache.Backend,
		close:   closeFn,
	}
	if cfg.Cache.LocalTTL > 0 {
		handle.Store = NewTieredLinkStore(instrumented, cfg.Cache.LocalTTL, cfg.Cache.LocalCleanup, metrics)
	}

	log.Info(ctx, "link store opened",
		logger.String("backend", cfg.Cache.Backend),
		logger.Bool("local_tier", cfg.Cache.LocalTTL > 0),
	)
	return handle, nil
}
