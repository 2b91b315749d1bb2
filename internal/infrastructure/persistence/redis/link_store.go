package redis

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/argproxy/internal/domain/repository"
	"github.com/turtacn/argproxy/pkg/constants"
	"github.com/turtacn/argproxy/pkg/errors"
	"github.com/turtacn/argproxy/pkg/logger"
)

var _ repository.LinkStore = (*LinkStore)(nil)

// LinkStore keeps encoded link records in Redis under prefix+key.
// LinkStore 将编码后的链接记录保存在 Redis 中。
type LinkStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    logger.Logger
}

// NewLinkStore creates a redis-backed link store. A ttl of zero keeps records until they are overwritten.
func NewLinkStore(client redis.UniversalClient, prefix string, ttl time.Duration, log logger.Logger) *LinkStore {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if prefix == "" {
		prefix = constants.DefaultCacheKeyPrefix
	}
	return &LinkStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    log.WithComponent("redis_link_store"),
	}
}

// Get returns the record under key. A missing key is (nil, false, nil).
func (s *LinkStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		s.log.Warn(ctx, "redis get failed", logger.String("cache_key", key), logger.Err(err))
		return nil, false, errors.ErrCacheIO("get").WithCause(err)
	}
	return val, true, nil
}

// Put overwrites the record under key.
func (s *LinkStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		s.log.Warn(ctx, "redis set failed", logger.String("cache_key", key), logger.Err(err))
		return errors.ErrCacheIO("put").WithCause(err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *LinkStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
