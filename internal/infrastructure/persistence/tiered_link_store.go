package persistence

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/argproxy/internal/domain/repository"
	"github.com/turtacn/argproxy/internal/domain/service"
)

const localTier = "local"

// TieredLinkStore puts a short-lived in-process cache (L1) in front of another LinkStore (L2).
// Writes go to L2 first and only reach L1 when L2 accepted them, so L1 never holds a record
// the shared store does not.
type TieredLinkStore struct {
	next    repository.LinkStore
	local   *gocache.Cache
	metrics service.Metrics
}

// NewTieredLinkStore wraps next with an L1 of the given ttl and cleanup interval.
func NewTieredLinkStore(next repository.LinkStore, ttl, cleanup time.Duration, metrics service.Metrics) *TieredLinkStore {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	return &TieredLinkStore{
		next:    next,
		local:   gocache.New(ttl, cleanup),
		metrics: metrics,
	}
}

// Get serves from L1 when possible and fills L1 from L2 otherwise.
func (s *TieredLinkStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := s.local.Get(key); ok {
		s.metrics.RecordCacheAccess(localTier, true)
		return cloneBytes(v.([]byte)), true, nil
	}
	s.metrics.RecordCacheAccess(localTier, false)

	value, found, err := s.next.Get(ctx, key)
	if err != nil || !found {
		return value, found, err
	}
	s.local.SetDefault(key, cloneBytes(value))
	return value, true, nil
}

// Put writes through to L2 and then refreshes L1.
func (s *TieredLinkStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.next.Put(ctx, key, value); err != nil {
		s.local.Delete(key)
		return err
	}
	s.local.SetDefault(key, cloneBytes(value))
	return nil
}

// Ping delegates to L2 when it supports health checks.
func (s *TieredLinkStore) Ping(ctx context.Context) error {
	if hc, ok := s.next.(repository.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

// Flush empties L1.
func (s *TieredLinkStore) Flush() {
	s.local.Flush()
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
