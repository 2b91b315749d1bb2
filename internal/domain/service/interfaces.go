package service

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/argproxy/internal/domain/models"
)

//go:generate mockery --name RefreshClient --output mocks --outpkg mocks
// RefreshClient asks the upstream API to re-sign an attachment link.
// RefreshClient 请求上游接口为附件链接重新签名。
type RefreshClient interface {
	// Refresh sends link to the upstream refresh endpoint and returns the first refreshed
	// link as a raw string. Every failure is reported as an upstream_refresh_error.
	// Refresh 返回上游给出的第一个刷新后链接（原始字符串）。
	Refresh(ctx context.Context, link models.SignedURL) (string, error)
}

//go:generate mockery --name RecordCodec --output mocks --outpkg mocks
// RecordCodec converts links to and from the opaque values kept in a LinkStore.
// RecordCodec 负责链接与存储记录之间的编解码。
type RecordCodec interface {
	// Encode serialises a link into a store value. Links the codec cannot represent
	// yield conversion_error.
	Encode(link models.SignedURL) ([]byte, error)

	// Decode parses a store value. Corrupt values yield decode_error, values whose
	// instants cannot be represented yield conversion_error.
	Decode(value []byte) (models.SignedURL, error)
}

//go:generate mockery --name Resolver --output mocks --outpkg mocks
// Resolver decides the redirect target for an inbound link.
// Resolver 为入站链接决定重定向目标。
type Resolver interface {
	Resolve(ctx context.Context, incoming models.SignedURL, now time.Time) (*Resolution, error)
}

// EventPublisher emits resolution events to downstream consumers.
// EventPublisher 向下游发布链接解析事件。
type EventPublisher interface {
	PublishResolution(ctx context.Context, event *ResolutionEvent) error
	Close() error
}

// ResolutionEvent describes one completed resolution.
type ResolutionEvent struct {
	RequestID    string    `json:"request_id,omitempty"`
	ChannelID    uint64    `json:"channel_id"`
	AttachmentID uint64    `json:"attachment_id"`
	Filename     string    `json:"filename"`
	Outcome      Outcome   `json:"outcome"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

// CacheKey returns the store key of the resolved attachment.
func (e *ResolutionEvent) CacheKey() string {
	return fmt.Sprintf("%x/%x", e.ChannelID, e.AttachmentID)
}

// NewResolutionEvent builds the event for res.
func NewResolutionEvent(requestID string, res *Resolution, resolvedAt time.Time) *ResolutionEvent {
	event := &ResolutionEvent{
		RequestID:    requestID,
		ChannelID:    res.Target.ChannelID,
		AttachmentID: res.Target.AttachmentID,
		Filename:     res.Target.Filename,
		Outcome:      res.Outcome,
		ResolvedAt:   resolvedAt.UTC(),
	}
	if w := res.Target.Window; w != nil {
		event.ExpiresAt = w.ExpiresAt
	}
	return event
}
