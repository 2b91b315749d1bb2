package service

import (
	"context"
	stderrors "errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/turtacn/argproxy/internal/application/dto"
	"github.com/turtacn/argproxy/internal/domain/models"
	domainservice "github.com/turtacn/argproxy/internal/domain/service"
	"github.com/turtacn/argproxy/internal/domain/service/mocks"
	"github.com/turtacn/argproxy/internal/infrastructure/monitoring"
	"github.com/turtacn/argproxy/pkg/errors"
	"github.com/turtacn/argproxy/pkg/logger"
)

var testNow = time.Unix(1_700_000_000, 0).UTC()

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.ParseRequestURI(raw)
	require.NoError(t, err)
	return u
}

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantKey string
		window  bool
		wantErr bool
	}{
		{name: "bare with window", raw: "/attachments/10/20/file.png?ex=65b0&is=65a9&hm=ddeeff", wantKey: "a/14", window: true},
		{name: "bare without window", raw: "/attachments/10/20/file.png", wantKey: "a/14"},
		{name: "wrapped uses outer query", raw: "/https://cdn.discordapp.com/attachments/10/20/file.png?ex=65b0&is=65a9&hm=ddeeff", wantKey: "a/14", window: true},
		{name: "wrapped without query", raw: "/https://cdn.discordapp.com/attachments/1/2/a.png", wantKey: "1/2"},
		{name: "partial window", raw: "/attachments/10/20/file.png?ex=65b0", wantErr: true},
		{name: "not an attachment", raw: "/favicon.ico", wantErr: true},
		{name: "root", raw: "/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := ParseInbound(mustURL(t, tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.CodeParse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, link.CacheKey())
			assert.Equal(t, tt.window, link.Window != nil)
		})
	}
}

func TestLinkAppService_Resolve(t *testing.T) {
	target, err := models.Parse("https://cdn.discordapp.com/attachments/10/20/file.png?ex=65b0&is=65a9&hm=ddeeff")
	require.NoError(t, err)

	resolver := new(mocks.MockResolver)
	resolver.On("Resolve", mock.Anything, mock.AnythingOfType("models.SignedURL"), testNow).
		Return(&domainservice.Resolution{Target: target, Outcome: domainservice.OutcomeRefreshed}, nil)

	metrics := new(mocks.MockMetrics)
	metrics.On("RecordResolution", domainservice.OutcomeRefreshed, time.Duration(0)).Return()

	publisher := new(mocks.MockEventPublisher)
	publisher.On("PublishResolution", mock.Anything, mock.MatchedBy(func(e *domainservice.ResolutionEvent) bool {
		return e.RequestID == "req-1" && e.Outcome == domainservice.OutcomeRefreshed && e.AttachmentID == 20
	})).Return(stderrors.New("broker down"))

	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	tracing := monitoring.NewTracingManagerWithProvider(provider, nil)

	svc := NewLinkAppService(resolver, publisher, metrics, tracing, LinkAppServiceOptions{
		CDNBaseURL: "https://cdn.example.test",
		Now:        func() time.Time { return testNow },
	}, nil)

	resp, err := svc.Resolve(context.Background(), &dto.ResolveLinkRequest{
		URL:       mustURL(t, "/https://cdn.discordapp.com/attachments/10/20/file.png?ex=10&is=5&hm=aa"),
		RequestID: "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.test/attachments/10/20/file.png?ex=65b0&is=65a9&hm=ddeeff", resp.Location)
	assert.Equal(t, "a/14", resp.CacheKey)
	assert.Equal(t, "refreshed", resp.Outcome)
	require.NotNil(t, resp.ExpiresAt)
	assert.Equal(t, int64(0x65b0), resp.ExpiresAt.Unix())

	resolver.AssertExpectations(t)
	metrics.AssertExpectations(t)
	publisher.AssertExpectations(t)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "LinkAppService.Resolve", spans[0].Name)
}

func TestLinkAppService_ParseErrorSkipsResolver(t *testing.T) {
	resolver := new(mocks.MockResolver)
	metrics := new(mocks.MockMetrics)
	metrics.On("RecordResolveError", "parse_error").Return()

	svc := NewLinkAppService(resolver, nil, metrics, nil, LinkAppServiceOptions{}, nil)
	_, err := svc.Resolve(context.Background(), &dto.ResolveLinkRequest{
		URL: mustURL(t, "/attachments/x/20/file.png"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeParse))
	resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
	metrics.AssertExpectations(t)
}

func TestLinkAppService_ResolverErrorPropagates(t *testing.T) {
	resolver := new(mocks.MockResolver)
	resolver.On("Resolve", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.ErrUpstreamRefresh("upstream answered 500"))
	metrics := new(mocks.MockMetrics)
	metrics.On("RecordResolveError", "upstream_refresh_error").Return()
	publisher := new(mocks.MockEventPublisher)

	svc := NewLinkAppService(resolver, publisher, metrics, nil, LinkAppServiceOptions{}, nil)
	_, err := svc.Resolve(context.Background(), &dto.ResolveLinkRequest{
		URL: mustURL(t, "/attachments/10/20/file.png"),
	})
	assert.True(t, errors.HasCode(err, errors.CodeUpstreamRefresh))
	metrics.AssertExpectations(t)
	publisher.AssertNotCalled(t, "PublishResolution", mock.Anything, mock.Anything)
}

// levelCounter counts log calls per level.
type levelCounter struct {
	debug, errors int
}

func (l *levelCounter) Debug(context.Context, string, ...logger.Field)        { l.debug++ }
func (l *levelCounter) Info(context.Context, string, ...logger.Field)         {}
func (l *levelCounter) Warn(context.Context, string, ...logger.Field)         {}
func (l *levelCounter) Error(context.Context, string, error, ...logger.Field) { l.errors++ }
func (l *levelCounter) Fatal(context.Context, string, error, ...logger.Field) {}
func (l *levelCounter) WithFields(...logger.Field) logger.Logger              { return l }
func (l *levelCounter) WithComponent(string) logger.Logger                    { return l }

func TestLinkAppService_FailureLogLevels(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantErrors int
	}{
		{name: "decode error logged by resolver", err: errors.ErrDecode("malformed tag")},
		{name: "conversion error logged by resolver", err: errors.ErrConversion("expiry out of range")},
		{name: "upstream error", err: errors.ErrUpstreamRefresh("upstream answered 500"), wantErrors: 1},
		{name: "cache error", err: errors.ErrCacheIO("get"), wantErrors: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := new(mocks.MockResolver)
			resolver.On("Resolve", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			log := &levelCounter{}

			svc := NewLinkAppService(resolver, nil, nil, nil, LinkAppServiceOptions{}, log)
			_, err := svc.Resolve(context.Background(), &dto.ResolveLinkRequest{
				URL: mustURL(t, "/attachments/10/20/file.png"),
			})
			require.Error(t, err)
			assert.Equal(t, tt.wantErrors, log.errors)
			assert.Equal(t, 1-tt.wantErrors, log.debug)
		})
	}
}
