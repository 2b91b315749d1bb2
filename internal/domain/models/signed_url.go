// Package models defines the domain models for the argproxy service.
// This file contains the SignedURL model: parsing, rendering and expiry checks.
package models

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/turtacn/argproxy/pkg/constants"
	"github.com/turtacn/argproxy/pkg/errors"
)

// Unix second bounds of the instants a validity window may carry (years 1 through 9999).
const (
	MinUnixSeconds int64 = -62135596800
	MaxUnixSeconds int64 = 253402300799
)

// Identity is the stable identity of an attachment, independent of any signature.
// Identity 是附件的稳定标识，与签名无关。
type Identity struct {
	ChannelID    uint64
	AttachmentID uint64
	Filename     string
}

// ValidityWindow describes when a specific signature is authoritative.
// ValidityWindow 描述某个签名的有效时间窗口。
type ValidityWindow struct {
	// ExpiresAt is decoded from the "ex" parameter.
	ExpiresAt time.Time
	// IssuedAt is decoded from the "is" parameter.
	IssuedAt time.Time
	// Signature holds the raw bytes of the "hm" parameter. It is never verified.
	Signature []byte
}

// EffectivelyExpired reports whether the window must be treated as expired at now,
// i.e. ExpiresAt minus margin is not strictly after now.
func (w *ValidityWindow) EffectivelyExpired(now time.Time, margin time.Duration) bool {
	return !w.ExpiresAt.Add(-margin).After(now)
}

// Equal compares two windows field by field, including the exact signature bytes.
func (w *ValidityWindow) Equal(other *ValidityWindow) bool {
	if w == nil || other == nil {
		return w == nil && other == nil
	}
	return w.ExpiresAt.Equal(other.ExpiresAt) &&
		w.IssuedAt.Equal(other.IssuedAt) &&
		bytes.Equal(w.Signature, other.Signature)
}

// SignedURL is an attachment identity plus an optional validity window.
// SignedURL 由附件标识和可选的有效窗口组成。
type SignedURL struct {
	Identity
	Window *ValidityWindow
}

// CacheKey returns the store key for the attachment. It depends on the channel and
// attachment ids only, so refreshed links for the same attachment share one key.
func (s SignedURL) CacheKey() string {
	return fmt.Sprintf("%x/%x", s.ChannelID, s.AttachmentID)
}

// Equal reports structural equality: same identity and same window, signature included.
func (s SignedURL) Equal(other SignedURL) bool {
	return s.Identity == other.Identity && s.Window.Equal(other.Window)
}

// UsableAt reports whether the link carries a window that is not effectively expired at now.
func (s SignedURL) UsableAt(now time.Time, margin time.Duration) bool {
	return s.Window != nil && !s.Window.EffectivelyExpired(now, margin)
}

// Render returns the canonical form of the link below base (scheme and host).
// Window parameters are always written in the order ex, is, hm.
func (s SignedURL) Render(base string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	fmt.Fprintf(&b, "/%s/%d/%d/%s",
		constants.AttachmentsPathSegment, s.ChannelID, s.AttachmentID, url.PathEscape(s.Filename))
	if w := s.Window; w != nil {
		fmt.Fprintf(&b, "?%s=%x&%s=%x&%s=%s",
			constants.QueryParamExpiresAt, w.ExpiresAt.Unix(),
			constants.QueryParamIssuedAt, w.IssuedAt.Unix(),
			constants.QueryParamSignature, hex.EncodeToString(w.Signature))
	}
	return b.String()
}

// String renders the link against the default CDN host.
func (s SignedURL) String() string {
	return s.Render(constants.DefaultCDNBaseURL)
}

// ================================================================================
// Parsing
// ================================================================================

// Parse parses a bare signed attachment link.
func Parse(raw string) (SignedURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return SignedURL{}, errors.ErrParse("link is not a valid url").WithCause(err)
	}
	return ParseURL(u)
}

// ParseURL parses a bare signed attachment link of the form
// /attachments/{channelId}/{attachmentId}/{filename}?ex=..&is=..&hm=..
// Path segments after the filename are ignored.
func ParseURL(u *url.URL) (SignedURL, error) {
	segments := strings.Split(strings.TrimPrefix(u.EscapedPath(), "/"), "/")
	if len(segments) == 0 || segments[0] != constants.AttachmentsPathSegment {
		return SignedURL{}, errors.ErrParse("missing attachments path segment")
	}

	channelID, err := parseIDSegment(segments, 1, "channel_id")
	if err != nil {
		return SignedURL{}, err
	}
	attachmentID, err := parseIDSegment(segments, 2, "attachment_id")
	if err != nil {
		return SignedURL{}, err
	}

	if len(segments) < 4 || segments[3] == "" {
		return SignedURL{}, errors.ErrParse("missing filename segment")
	}
	filename, err := url.PathUnescape(segments[3])
	if err != nil {
		return SignedURL{}, errors.ErrParse("filename segment is not valid percent-encoding").WithCause(err)
	}
	if !utf8.ValidString(filename) {
		return SignedURL{}, errors.ErrParse("filename is not valid utf-8")
	}

	window, err := parseWindow(u.Query())
	if err != nil {
		return SignedURL{}, err
	}

	return SignedURL{
		Identity: Identity{
			ChannelID:    channelID,
			AttachmentID: attachmentID,
			Filename:     filename,
		},
		Window: window,
	}, nil
}

// ParseWrapped parses a link embedded as the path of an outer url, e.g.
// https://proxy/https://cdn.discordapp.com/attachments/1/2/a.png?ex=..&is=..&hm=..
// The outer query replaces whatever query the inner link carried.
func ParseWrapped(outer *url.URL) (SignedURL, error) {
	innerRaw := strings.TrimPrefix(outer.Path, "/")
	if innerRaw == "" {
		return SignedURL{}, errors.ErrParse("missing inner url")
	}
	inner, err := url.Parse(innerRaw)
	if err != nil {
		return SignedURL{}, errors.ErrParse("failed to parse inner url").WithCause(err)
	}
	inner.RawQuery = outer.RawQuery
	inner.ForceQuery = false
	return ParseURL(inner)
}

// ParseWrappedString is ParseWrapped for a raw outer url.
func ParseWrappedString(raw string) (SignedURL, error) {
	outer, err := url.Parse(raw)
	if err != nil {
		return SignedURL{}, errors.ErrParse("outer link is not a valid url").WithCause(err)
	}
	return ParseWrapped(outer)
}

func parseIDSegment(segments []string, idx int, name string) (uint64, error) {
	if len(segments) <= idx || segments[idx] == "" {
		return 0, errors.ErrParse(fmt.Sprintf("missing %s segment", name))
	}
	id, err := strconv.ParseUint(segments[idx], 10, 64)
	if err != nil {
		return 0, errors.ErrParse(fmt.Sprintf("failed to parse %s segment", name)).WithCause(err)
	}
	return id, nil
}

// parseWindow returns nil when none of ex, is, hm are present and an error when only some are.
func parseWindow(q url.Values) (*ValidityWindow, error) {
	present := 0
	for _, k := range []string{constants.QueryParamExpiresAt, constants.QueryParamIssuedAt, constants.QueryParamSignature} {
		if q.Has(k) {
			present++
		}
	}
	switch present {
	case 0:
		return nil, nil
	case 3:
	default:
		return nil, errors.ErrParse("incomplete validity window: ex, is and hm must appear together")
	}

	expiresAt, err := parseInstant(constants.QueryParamExpiresAt, q.Get(constants.QueryParamExpiresAt))
	if err != nil {
		return nil, err
	}
	issuedAt, err := parseInstant(constants.QueryParamIssuedAt, q.Get(constants.QueryParamIssuedAt))
	if err != nil {
		return nil, err
	}
	signature, err := hex.DecodeString(q.Get(constants.QueryParamSignature))
	if err != nil {
		return nil, errors.ErrParse("failed to parse hm parameter").WithCause(err)
	}

	return &ValidityWindow{
		ExpiresAt: expiresAt,
		IssuedAt:  issuedAt,
		Signature: signature,
	}, nil
}

func parseInstant(name, value string) (time.Time, error) {
	secs, err := strconv.ParseInt(value, 16, 64)
	if err != nil {
		return time.Time{}, errors.ErrParse(fmt.Sprintf("failed to parse %s parameter", name)).WithCause(err)
	}
	t, ok := InstantFromUnix(secs)
	if !ok {
		return time.Time{}, errors.ErrParse(fmt.Sprintf("%s parameter is out of range", name))
	}
	return t, nil
}

// InstantFromUnix converts Unix seconds to a UTC instant, rejecting values outside years 1..9999.
func InstantFromUnix(secs int64) (time.Time, bool) {
	if secs < MinUnixSeconds || secs > MaxUnixSeconds {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}
