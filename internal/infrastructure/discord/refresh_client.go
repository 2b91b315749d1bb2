// Package discord implements the client for the upstream attachment refresh API.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/turtacn/argproxy/internal/config"
	"github.com/turtacn/argproxy/internal/domain/models"
	"github.com/turtacn/argproxy/internal/domain/service"
	"github.com/turtacn/argproxy/internal/infrastructure/kms"
	"github.com/turtacn/argproxy/pkg/constants"
	"github.com/turtacn/argproxy/pkg/errors"
	"github.com/turtacn/argproxy/pkg/logger"
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 1 << 20

type refreshRequest struct {
	AttachmentURLs []string `json:"attachment_urls"`
}

type refreshedURL struct {
	Original  string `json:"original"`
	Refreshed string `json:"refreshed"`
}

type refreshResponse struct {
	RefreshedURLs []refreshedURL `json:"refreshed_urls"`
}

// invalidator is implemented by token providers that cache credentials.
type invalidator interface {
	Invalidate()
}

// RefreshClient calls the refresh-urls endpoint.
// RefreshClient 调用上游 refresh-urls 接口为链接重新签名。
type RefreshClient struct {
	httpClient *http.Client
	endpoint   string
	userAgent  string
	authScheme string
	cdnBase    string
	tokens     kms.TokenProvider
	metrics    service.Metrics
	logger     logger.Logger
}

// NewRefreshClient creates a RefreshClient. A nil httpClient gets one bounded by cfg.Timeout.
func NewRefreshClient(
	cfg *config.DiscordConfig,
	tokens kms.TokenProvider,
	httpClient *http.Client,
	metrics service.Metrics,
	log logger.Logger,
) *RefreshClient {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = constants.DefaultRefreshTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	c := &RefreshClient{
		httpClient: httpClient,
		endpoint:   cfg.RefreshURL,
		userAgent:  cfg.UserAgent,
		authScheme: cfg.AuthScheme,
		cdnBase:    cfg.CDNBaseURL,
		tokens:     tokens,
		metrics:    metrics,
		logger:     log.WithComponent("discord_refresh_client"),
	}
	if c.endpoint == "" {
		c.endpoint = constants.DefaultRefreshURL
	}
	if c.userAgent == "" {
		c.userAgent = constants.DefaultUserAgent
	}
	if c.authScheme == "" {
		c.authScheme = constants.DefaultAuthScheme
	}
	if c.cdnBase == "" {
		c.cdnBase = constants.DefaultCDNBaseURL
	}
	return c
}

// Refresh implements service.RefreshClient.
func (c *RefreshClient) Refresh(ctx context.Context, link models.SignedURL) (string, error) {
	start := time.Now()
	refreshed, err := c.refresh(ctx, link)
	c.metrics.RecordRefresh(err == nil, time.Since(start))
	if err != nil {
		c.logger.Warn(ctx, "upstream refresh failed",
			logger.String("cache_key", link.CacheKey()),
			logger.Err(err),
		)
		return "", err
	}
	return refreshed, nil
}

func (c *RefreshClient) refresh(ctx context.Context, link models.SignedURL) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", errors.ErrUpstreamRefresh("bot token unavailable").WithCause(err)
	}

	body, err := json.Marshal(refreshRequest{AttachmentURLs: []string{link.Render(c.cdnBase)}})
	if err != nil {
		return "", errors.ErrUpstreamRefresh("failed to encode refresh request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.ErrUpstreamRefresh("failed to build refresh request").WithCause(err)
	}
	req.Header.Set(constants.HeaderAuthorization, c.authScheme+" "+token)
	req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	req.Header.Set(constants.HeaderAccept, constants.ContentTypeJSON)
	req.Header.Set(constants.HeaderUserAgent, c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.ErrUpstreamRefresh("refresh request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := c.tokens.(invalidator); ok {
				inv.Invalidate()
			}
		}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Debug(ctx, "upstream error body", logger.String("body", string(snippet)))
		return "", errors.ErrUpstreamRefresh(fmt.Sprintf("upstream answered %d", resp.StatusCode)).
			WithMetadata("upstream_status", resp.StatusCode)
	}

	var out refreshResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", errors.ErrUpstreamRefresh("malformed refresh response").WithCause(err)
	}
	if len(out.RefreshedURLs) == 0 {
		return "", errors.ErrUpstreamRefresh("refresh response contained no links")
	}
	return out.RefreshedURLs[0].Refreshed, nil
}
