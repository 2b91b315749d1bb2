// Package postgres provides PostgreSQL connection management and the postgres-backed link store.
// It implements connection pooling, health checks, and lifecycle management using pgx driver.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/argproxy/internal/config"
	"github.com/turtacn/argproxy/pkg/errors"
	"github.com/turtacn/argproxy/pkg/logger"
)

// DBConnection manages PostgreSQL database connection pool lifecycle.
type DBConnection struct {
	pool   *pgxpool.Pool
	config *config.PostgresConfig
	logger logger.Logger
}

// NewDBConnection creates the connection pool and performs an initial health check.
func NewDBConnection(ctx context.Context, cfg *config.PostgresConfig, log logger.Logger) (*DBConnection, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, errors.ErrInvalidConfig("postgres dsn is required")
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	log = log.WithComponent("postgres")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		log.Error(ctx, "Failed to parse database connection string", err)
		return nil, errors.ErrInvalidConfig("postgres dsn is invalid").WithCause(err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Error(ctx, "Failed to create database connection pool", err)
		return nil, errors.ErrCacheIO("connect").WithCause(err)
	}

	db := &DBConnection{pool: pool, config: cfg, logger: log}
	if err := db.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info(ctx, "PostgreSQL connection pool initialized successfully",
		logger.Int("max_conns", int(poolConfig.MaxConns)),
		logger.Int("total_conns", int(pool.Stat().TotalConns())),
	)
	return db, nil
}

// Pool returns the underlying pgxpool.Pool for executing database operations.
func (db *DBConnection) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping verifies database connectivity and responsiveness.
func (db *DBConnection) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := db.pool.Ping(pingCtx); err != nil {
		db.logger.Error(ctx, "Database ping failed", err)
		return errors.ErrCacheIO("ping").WithCause(err)
	}

	// Warn if latency is high (> 100ms)
	if latency := time.Since(start); latency > 100*time.Millisecond {
		db.logger.Warn(ctx, "High database latency detected",
			logger.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return nil
}

// Stats summarises the pool for health reporting.
func (db *DBConnection) Stats() map[string]interface{} {
	stats := db.pool.Stat()
	return map[string]interface{}{
		"total_connections":    stats.TotalConns(),
		"idle_connections":     stats.IdleConns(),
		"acquired_connections": stats.AcquiredConns(),
		"max_connections":      stats.MaxConns(),
	}
}

// Close gracefully shuts down the connection pool.
func (db *DBConnection) Close() {
	db.pool.Close()
	db.logger.Info(context.Background(), "PostgreSQL connection pool closed")
}
