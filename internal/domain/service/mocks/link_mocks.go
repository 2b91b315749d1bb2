package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/argproxy/internal/domain/models"
	"github.com/turtacn/argproxy/internal/domain/service"
)

type MockLinkStore struct {
	mock.Mock
}

func (m *MockLinkStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockLinkStore) Put(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockLinkStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockRefreshClient struct {
	mock.Mock
}

func (m *MockRefreshClient) Refresh(ctx context.Context, link models.SignedURL) (string, error) {
	args := m.Called(ctx, link)
	return args.String(0), args.Error(1)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, incoming models.SignedURL, now time.Time) (*service.Resolution, error) {
	args := m.Called(ctx, incoming, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Resolution), args.Error(1)
}

type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordResolution(outcome service.Outcome, duration time.Duration) {
	m.Called(outcome, duration)
}

func (m *MockMetrics) RecordResolveError(code string) {
	m.Called(code)
}

func (m *MockMetrics) RecordRefresh(success bool, duration time.Duration) {
	m.Called(success, duration)
}

func (m *MockMetrics) RecordStoreOperation(backend, operation string, success bool, duration time.Duration) {
	m.Called(backend, operation, success, duration)
}

func (m *MockMetrics) RecordCacheAccess(tier string, hit bool) {
	m.Called(tier, hit)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishResolution(ctx context.Context, event *service.ResolutionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
