// Package persistence holds backend-independent link store decorators.
package persistence

import (
	"context"
	"time"

	"github.com/turtacn/argproxy/internal/domain/repository"
	"github.com/turtacn/argproxy/internal/domain/service"
)

// InstrumentedLinkStore records latency and result of every call to the wrapped store.
type InstrumentedLinkStore struct {
	next    repository.LinkStore
	backend string
	metrics service.Metrics
}

// NewInstrumentedLinkStore wraps next; backend labels the emitted metrics.
func NewInstrumentedLinkStore(next repository.LinkStore, backend string, metrics service.Metrics) *InstrumentedLinkStore {
	return &InstrumentedLinkStore{next: next, backend: backend, metrics: metrics}
}

func (s *InstrumentedLinkStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, found, err := s.next.Get(ctx, key)
	s.metrics.RecordStoreOperation(s.backend, "get", err == nil, time.Since(start))
	return value, found, err
}

func (s *InstrumentedLinkStore) Put(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := s.next.Put(ctx, key, value)
	s.metrics.RecordStoreOperation(s.backend, "put", err == nil, time.Since(start))
	return err
}

// Ping delegates to the wrapped store when it supports health checks.
func (s *InstrumentedLinkStore) Ping(ctx context.Context) error {
	if hc, ok := s.next.(repository.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}
