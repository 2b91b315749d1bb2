// Package dto holds the request and response shapes exchanged between the interfaces
// layer and the application services.
package dto

import (
	"net/url"
	"time"
)

// ResolveLinkRequest is one inbound proxy request.
// ResolveLinkRequest 表示一次入站代理请求。
type ResolveLinkRequest struct {
	// URL is the request url as received; its path is either a bare attachment path or a
	// full attachment link.
	URL       *url.URL
	RequestID string
}

// ResolveLinkResponse tells the edge where to redirect.
// ResolveLinkResponse 告诉边缘层重定向目标。
type ResolveLinkResponse struct {
	Location  string     `json:"location"`
	CacheKey  string     `json:"cache_key"`
	Outcome   string     `json:"outcome"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
