// Package service provides application-level services that orchestrate domain services and infrastructure
package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/turtacn/argproxy/internal/application/dto"
	"github.com/turtacn/argproxy/internal/domain/models"
	domainService "github.com/turtacn/argproxy/internal/domain/service"
	"github.com/turtacn/argproxy/internal/infrastructure/monitoring"
	"github.com/turtacn/argproxy/pkg/constants"
	"github.com/turtacn/argproxy/pkg/errors"
	"github.com/turtacn/argproxy/pkg/logger"
)

// LinkAppService defines the application service behind the proxy edge
type LinkAppService interface {
	// Resolve parses the inbound request url and returns the redirect target
	Resolve(ctx context.Context, req *dto.ResolveLinkRequest) (*dto.ResolveLinkResponse, error)
}

// LinkAppServiceOptions configures a LinkAppService
type LinkAppServiceOptions struct {
	// CDNBaseURL is the scheme and host redirect targets are rendered against
	CDNBaseURL string
	// Now returns the current time; defaults to time.Now
	Now func() time.Time
}

type linkAppServiceImpl struct {
	resolver  domainService.Resolver
	publisher domainService.EventPublisher
	metrics   domainService.Metrics
	tracing   *monitoring.TracingManager
	cdnBase   string
	now       func() time.Time
	logger    logger.Logger
}

// NewLinkAppService creates a new instance of LinkAppService
func NewLinkAppService(
	resolver domainService.Resolver,
	publisher domainService.EventPublisher,
	metrics domainService.Metrics,
	tracing *monitoring.TracingManager,
	opts LinkAppServiceOptions,
	log logger.Logger,
) LinkAppService {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if metrics == nil {
		metrics = domainService.NoopMetrics{}
	}
	if tracing == nil {
		tracing = monitoring.NewNoopTracingManager(log)
	}
	if opts.CDNBaseURL == "" {
		opts.CDNBaseURL = constants.DefaultCDNBaseURL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &linkAppServiceImpl{
		resolver:  resolver,
		publisher: publisher,
		metrics:   metrics,
		tracing:   tracing,
		cdnBase:   opts.CDNBaseURL,
		now:       opts.Now,
		logger:    log.WithComponent("link_app_service"),
	}
}

// Resolve implements LinkAppService
func (s *linkAppServiceImpl) Resolve(ctx context.Context, req *dto.ResolveLinkRequest) (*dto.ResolveLinkResponse, error) {
	ctx, span := s.tracing.StartSpan(ctx, "LinkAppService.Resolve")
	defer span.End()

	start := s.now()

	// 1. Parse the inbound link in either form
	incoming, err := ParseInbound(req.URL)
	if err != nil {
		s.fail(ctx, err)
		return nil, err
	}
	s.tracing.SetSpanAttributes(ctx, map[string]interface{}{
		"link.cache_key":  incoming.CacheKey(),
		"link.has_window": incoming.Window != nil,
	})

	// 2. Decide the redirect target
	res, err := s.resolver.Resolve(ctx, incoming, start)
	if err != nil {
		s.fail(ctx, err)
		return nil, err
	}

	s.metrics.RecordResolution(res.Outcome, s.now().Sub(start))
	s.tracing.SetSpanAttributes(ctx, map[string]interface{}{"link.outcome": string(res.Outcome)})

	// 3. Publish the event; a failure here never fails the request
	if err := s.publisher.PublishResolution(ctx, domainService.NewResolutionEvent(req.RequestID, res, start)); err != nil {
		s.logger.Warn(ctx, "failed to publish resolution event", logger.Err(err))
	}

	resp := &dto.ResolveLinkResponse{
		Location: res.Target.Render(s.cdnBase),
		CacheKey: res.Target.CacheKey(),
		Outcome:  string(res.Outcome),
	}
	if w := res.Target.Window; w != nil {
		expiresAt := w.ExpiresAt
		resp.ExpiresAt = &expiresAt
	}

	s.logger.Debug(ctx, "link resolved",
		logger.String("cache_key", resp.CacheKey),
		logger.String("outcome", resp.Outcome),
	)
	return resp, nil
}

func (s *linkAppServiceImpl) fail(ctx context.Context, err error) {
	code := string(errors.CodeInternal)
	if appErr, ok := errors.AsAppError(err); ok {
		code = string(appErr.Code())
	}
	s.metrics.RecordResolveError(code)
	s.tracing.RecordError(ctx, err, map[string]interface{}{"error.code": code})
	switch {
	case errors.IsClientError(err):
		s.logger.Debug(ctx, "rejected inbound link", logger.Err(err))
	case errors.HasCode(err, errors.CodeDecode), errors.HasCode(err, errors.CodeConversion):
		// The resolver already logged the record anomaly.
		s.logger.Debug(ctx, "link resolution failed", logger.Err(err))
	default:
		s.logger.Error(ctx, "link resolution failed", err)
	}
}

// ParseInbound parses a proxy request url. A path starting with /attachments/ is a bare
// link; anything else is treated as a full link wrapped in the path, whose query is
// replaced by the outer query.
func ParseInbound(u *url.URL) (models.SignedURL, error) {
	if u == nil {
		return models.SignedURL{}, errors.ErrParse("missing request url")
	}
	if strings.HasPrefix(u.Path, "/"+constants.AttachmentsPathSegment+"/") {
		return models.ParseURL(u)
	}
	return models.ParseWrapped(u)
}

type noopPublisher struct{}

func (noopPublisher) PublishResolution(context.Context, *domainService.ResolutionEvent) error {
	return nil
}

func (noopPublisher) Close() error { return nil }
