// Package redis provides Redis connection management and the redis-backed link stores.
// It supports standalone, cluster, and sentinel deployment modes with connection pooling.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/argproxy/internal/config"
	"github.com/turtacn/argproxy/pkg/logger"
)

// ConnectionMode defines Redis deployment mode
type ConnectionMode string

const (
	// ModeStandalone represents single Redis instance
	ModeStandalone ConnectionMode = "standalone"
	// ModeCluster represents Redis cluster mode
	ModeCluster ConnectionMode = "cluster"
	// ModeSentinel represents Redis sentinel mode for high availability
	ModeSentinel ConnectionMode = "sentinel"
)

// RedisConnection manages Redis client lifecycle and health monitoring.
type RedisConnection struct {
	config *config.RedisConfig
	client redis.UniversalClient
	logger logger.Logger
}

// NewRedisConnection creates a new Redis connection manager instance.
func NewRedisConnection(cfg *config.RedisConfig, log logger.Logger) *RedisConnection {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &RedisConnection{
		config: cfg,
		logger: log.WithComponent("redis"),
	}
}

// NewRedisConnectionFromClient wraps an already constructed client.
func NewRedisConnectionFromClient(client redis.UniversalClient, log logger.Logger) *RedisConnection {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &RedisConnection{
		config: &config.RedisConfig{Mode: string(ModeStandalone)},
		client: client,
		logger: log.WithComponent("redis"),
	}
}

// Connect establishes the Redis connection based on the configured mode and verifies it with a ping.
func (rc *RedisConnection) Connect(ctx context.Context) error {
	if rc.client != nil {
		rc.logger.Warn(ctx, "Redis connection already initialized")
		return nil
	}

	mode := ConnectionMode(rc.config.Mode)
	if mode == "" {
		mode = ModeStandalone
	}
	if len(rc.config.Addresses) == 0 {
		return fmt.Errorf("redis addresses not configured")
	}

	opts := &redis.UniversalOptions{
		Addrs:        rc.config.Addresses,
		Password:     rc.config.Password,
		DB:           rc.config.DB,
		PoolSize:     rc.config.PoolSize,
		MinIdleConns: rc.config.MinIdleConns,
		DialTimeout:  rc.config.DialTimeout,
		ReadTimeout:  rc.config.ReadTimeout,
		WriteTimeout: rc.config.WriteTimeout,
	}

	var client redis.UniversalClient
	switch mode {
	case ModeStandalone:
		client = redis.NewClient(opts.Simple())
	case ModeCluster:
		client = redis.NewClusterClient(opts.Cluster())
	case ModeSentinel:
		if rc.config.MasterName == "" {
			return fmt.Errorf("sentinel master name not configured")
		}
		opts.MasterName = rc.config.MasterName
		client = redis.NewFailoverClient(opts.Failover())
	default:
		return fmt.Errorf("unsupported Redis mode: %s", mode)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rc.logger.Error(ctx, "Redis ping failed", err, logger.String("mode", string(mode)))
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	rc.client = client
	rc.logger.Info(ctx, "Redis connection established successfully",
		logger.String("mode", string(mode)),
		logger.Int("pool_size", rc.config.PoolSize),
	)
	return nil
}

// GetClient returns the Redis client instance, or nil before Connect.
func (rc *RedisConnection) GetClient() redis.UniversalClient {
	return rc.client
}

// Ping checks Redis server connectivity.
func (rc *RedisConnection) Ping(ctx context.Context) error {
	if rc.client == nil {
		return fmt.Errorf("redis connection not initialized")
	}
	return rc.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (rc *RedisConnection) Close() error {
	if rc.client == nil {
		return nil
	}
	err := rc.client.Close()
	rc.client = nil
	if err != nil {
		rc.logger.Error(context.Background(), "Failed to close Redis connection", err)
		return err
	}
	rc.logger.Info(context.Background(), "Redis connection closed")
	return nil
}
