package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/argproxy/internal/domain/models"
	"github.com/turtacn/argproxy/internal/domain/repository"
	"github.com/turtacn/argproxy/pkg/constants"
	"github.com/turtacn/argproxy/pkg/errors"
	"github.com/turtacn/argproxy/pkg/logger"
)

// Outcome names the branch a resolution took.
type Outcome string

const (
	// OutcomeCacheHit: the inbound link was fresh and identical to the cached record.
	OutcomeCacheHit Outcome = "cache_hit"
	// OutcomeCacheUpdated: the inbound link was fresh and replaced the cached record.
	OutcomeCacheUpdated Outcome = "cache_updated"
	// OutcomeServedFromCache: the inbound link was stale but the cached record was fresh.
	OutcomeServedFromCache Outcome = "served_from_cache"
	// OutcomeRefreshed: neither was fresh, so the upstream re-signed the link.
	OutcomeRefreshed Outcome = "refreshed"
)

// Resolution is the result of a successful Resolve call.
type Resolution struct {
	// Target is the link the client should be redirected to.
	Target  models.SignedURL
	Outcome Outcome
}

// ResolverOptions tunes a LinkResolver.
type ResolverOptions struct {
	// ExpiryMargin is subtracted from a window's expiry before it is considered usable.
	ExpiryMargin time.Duration
	// CoalesceRefreshes collapses concurrent refreshes of the same key into one upstream call.
	// Each caller still gives up when its own context ends.
	CoalesceRefreshes bool
	// RefreshTimeout bounds a coalesced refresh, which runs detached from any single caller.
	RefreshTimeout time.Duration
}

// DefaultResolverOptions returns the options used when nothing is configured.
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		ExpiryMargin:      constants.DefaultExpiryMargin,
		CoalesceRefreshes: true,
		RefreshTimeout:    constants.DefaultRefreshTimeout,
	}
}

// LinkResolver decides, for an inbound link, which signed link to redirect to. It keeps
// the store holding the freshest known link per attachment and only calls the upstream
// when neither the inbound nor the stored link is usable.
// LinkResolver 为入站链接选择重定向目标，并维护存储中每个附件最新的签名链接。
type LinkResolver struct {
	store     repository.LinkStore
	refresher RefreshClient
	codec     RecordCodec
	opts      ResolverOptions
	log       logger.Logger
	sf        singleflight.Group
}

// NewLinkResolver creates a LinkResolver.
func NewLinkResolver(
	store repository.LinkStore,
	refresher RefreshClient,
	codec RecordCodec,
	opts ResolverOptions,
	log logger.Logger,
) *LinkResolver {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = constants.DefaultRefreshTimeout
	}
	return &LinkResolver{
		store:     store,
		refresher: refresher,
		codec:     codec,
		opts:      opts,
		log:       log.WithComponent("link_resolver"),
	}
}

// Resolve picks the redirect target for incoming as of now.
//
// A fresh inbound link always wins and is written back unless the store already holds the
// identical link. A stale inbound link is answered from the store when the stored link is
// fresh, and otherwise refreshed upstream and stored under the refreshed link's key.
func (r *LinkResolver) Resolve(ctx context.Context, incoming models.SignedURL, now time.Time) (*Resolution, error) {
	key := incoming.CacheKey()

	if incoming.UsableAt(now, r.opts.ExpiryMargin) {
		cached, found, err := r.lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		if found && cached.Equal(incoming) {
			return &Resolution{Target: incoming, Outcome: OutcomeCacheHit}, nil
		}
		if err := r.put(ctx, key, incoming); err != nil {
			return nil, err
		}
		return &Resolution{Target: incoming, Outcome: OutcomeCacheUpdated}, nil
	}

	cached, found, err := r.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if found && cached.UsableAt(now, r.opts.ExpiryMargin) {
		return &Resolution{Target: cached, Outcome: OutcomeServedFromCache}, nil
	}

	refreshed, err := r.refreshAndStore(ctx, key, incoming, now)
	if err != nil {
		return nil, err
	}
	return &Resolution{Target: refreshed, Outcome: OutcomeRefreshed}, nil
}

func (r *LinkResolver) refreshAndStore(ctx context.Context, key string, incoming models.SignedURL, now time.Time) (models.SignedURL, error) {
	if !r.opts.CoalesceRefreshes {
		return r.doRefresh(ctx, incoming, now)
	}
	if err := ctx.Err(); err != nil {
		return models.SignedURL{}, errors.ErrUpstreamRefresh("request ended before refresh").WithCause(err)
	}

	// The shared call outlives whichever caller started it.
	ch := r.sf.DoChan(key, func() (interface{}, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.RefreshTimeout)
		defer cancel()
		return r.doRefresh(sharedCtx, incoming, now)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.SignedURL{}, res.Err
		}
		if res.Shared {
			r.log.Debug(ctx, "refresh result shared with concurrent request", logger.String("cache_key", key))
		}
		return res.Val.(models.SignedURL), nil
	case <-ctx.Done():
		return models.SignedURL{}, errors.ErrUpstreamRefresh("request ended while waiting for refresh").WithCause(ctx.Err())
	}
}

func (r *LinkResolver) doRefresh(ctx context.Context, incoming models.SignedURL, now time.Time) (models.SignedURL, error) {
	raw, err := r.refresher.Refresh(ctx, incoming)
	if err != nil {
		if errors.HasCode(err, errors.CodeUpstreamRefresh) {
			return models.SignedURL{}, err
		}
		return models.SignedURL{}, errors.ErrUpstreamRefresh("refresh request failed").WithCause(err)
	}

	refreshed, err := models.Parse(raw)
	if err != nil {
		return models.SignedURL{}, errors.ErrUpstreamRefresh("upstream returned an unparsable link").WithCause(err)
	}
	if refreshed.Window != nil && refreshed.Window.EffectivelyExpired(now, r.opts.ExpiryMargin) {
		return models.SignedURL{}, errors.ErrUpstreamRefresh("upstream returned an already expired link").
			WithMetadata("expires_at", refreshed.Window.ExpiresAt)
	}

	if err := r.put(ctx, refreshed.CacheKey(), refreshed); err != nil {
		return models.SignedURL{}, err
	}

	r.log.Info(ctx, "link refreshed upstream",
		logger.String("cache_key", refreshed.CacheKey()),
		logger.Uint64("channel_id", refreshed.ChannelID),
		logger.Uint64("attachment_id", refreshed.AttachmentID),
	)
	return refreshed, nil
}

// lookup reads and decodes the record under key. A record that cannot be decoded is an
// error, never a miss.
func (r *LinkResolver) lookup(ctx context.Context, key string) (models.SignedURL, bool, error) {
	value, found, err := r.store.Get(ctx, key)
	if err != nil {
		return models.SignedURL{}, false, asCacheIO(err, "get")
	}
	if !found {
		return models.SignedURL{}, false, nil
	}

	cached, err := r.codec.Decode(value)
	if err != nil {
		r.log.Error(ctx, "stored link record is corrupt", err, logger.String("cache_key", key))
		return models.SignedURL{}, false, err
	}
	return cached, true, nil
}

func (r *LinkResolver) put(ctx context.Context, key string, link models.SignedURL) error {
	value, err := r.codec.Encode(link)
	if err != nil {
		r.log.Error(ctx, "link cannot be encoded for storage", err, logger.String("cache_key", key))
		return err
	}
	if err := r.store.Put(ctx, key, value); err != nil {
		return asCacheIO(err, "put")
	}
	return nil
}

func asCacheIO(err error, op string) error {
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	return errors.ErrCacheIO(op).WithCause(err)
}
