package models_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/argproxy/internal/domain/models"
	"github.com/turtacn/argproxy/pkg/errors"
)

func unix(secs int64) time.Time {
	return time.Unix(secs, 0).UTC()
}

func sampleWindow() *models.ValidityWindow {
	return &models.ValidityWindow{
		ExpiresAt: unix(0x65a0),
		IssuedAt:  unix(0x6599),
		Signature: []byte{0xaa, 0xbb, 0xcc},
	}
}

func TestParse_BareLink(t *testing.T) {
	got, err := models.Parse("https://cdn.discordapp.com/attachments/10/20/file.png?ex=65a0&is=6599&hm=aabbcc")
	require.NoError(t, err)

	assert.Equal(t, uint64(10), got.ChannelID)
	assert.Equal(t, uint64(20), got.AttachmentID)
	assert.Equal(t, "file.png", got.Filename)
	require.NotNil(t, got.Window)
	assert.True(t, got.Window.Equal(sampleWindow()))
}

func TestParse_NoWindowIsValid(t *testing.T) {
	got, err := models.Parse("https://cdn.discordapp.com/attachments/1/2/a.txt?foo=bar")
	require.NoError(t, err)
	assert.Nil(t, got.Window)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing attachments segment", "https://cdn.discordapp.com/files/1/2/a.png"},
		{"empty path", "https://cdn.discordapp.com"},
		{"missing channel", "https://cdn.discordapp.com/attachments"},
		{"channel not numeric", "https://cdn.discordapp.com/attachments/abc/2/a.png"},
		{"attachment overflows uint64", "https://cdn.discordapp.com/attachments/1/18446744073709551616/a.png"},
		{"negative attachment", "https://cdn.discordapp.com/attachments/1/-2/a.png"},
		{"missing filename", "https://cdn.discordapp.com/attachments/1/2"},
		{"empty filename", "https://cdn.discordapp.com/attachments/1/2/"},
		{"ex not hex", "https://cdn.discordapp.com/attachments/1/2/a.png?ex=zz&is=1&hm=aa"},
		{"is not hex", "https://cdn.discordapp.com/attachments/1/2/a.png?ex=1&is=&hm=aa"},
		{"odd length hm", "https://cdn.discordapp.com/attachments/1/2/a.png?ex=1&is=1&hm=abc"},
		{"hm not hex", "https://cdn.discordapp.com/attachments/1/2/a.png?ex=1&is=1&hm=zz"},
		{"ex out of range", "https://cdn.discordapp.com/attachments/1/2/a.png?ex=7fffffffffffffff&is=1&hm=aa"},
		{"filename not utf-8", "https://cdn.discordapp.com/attachments/1/2/%FF.png?ex=1&is=1&hm=aa"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := models.Parse(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeParse), "unexpected error: %v", err)
			assert.True(t, errors.IsClientError(err))
		})
	}
}

func TestParse_PartialWindowRejected(t *testing.T) {
	partial := []string{
		"ex=65a0",
		"is=6599",
		"hm=aabb",
		"ex=65a0&is=6599",
		"ex=65a0&hm=aabb",
		"is=6599&hm=aabb",
	}
	for _, q := range partial {
		t.Run(q, func(t *testing.T) {
			_, err := models.Parse("https://cdn.discordapp.com/attachments/1/2/a.png?" + q)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeParse))
		})
	}
}

func TestParseWrapped(t *testing.T) {
	t.Run("percent encoded relative inner path", func(t *testing.T) {
		got, err := models.ParseWrappedString("https://host/%2Fattachments%2F10%2F20%2Ffile.png?ex=65a0&is=6599&hm=aabbcc")
		require.NoError(t, err)
		assert.Equal(t, models.Identity{ChannelID: 10, AttachmentID: 20, Filename: "file.png"}, got.Identity)
		assert.True(t, got.Window.Equal(sampleWindow()))
	})

	t.Run("absolute inner url", func(t *testing.T) {
		outer := &url.URL{
			Scheme:   "https",
			Host:     "proxy.example",
			Path:     "/https://cdn.discordapp.com/attachments/10/20/file.png",
			RawQuery: "ex=65a0&is=6599&hm=aabbcc",
		}
		got, err := models.ParseWrapped(outer)
		require.NoError(t, err)
		assert.Equal(t, uint64(20), got.AttachmentID)
		assert.True(t, got.Window.Equal(sampleWindow()))
	})

	t.Run("outer query replaces inner query", func(t *testing.T) {
		outer := &url.URL{Path: "/https://cdn.discordapp.com/attachments/1/2/a.png?ex=1&is=1&hm=aa"}
		got, err := models.ParseWrapped(outer)
		require.NoError(t, err)
		assert.Nil(t, got.Window)
	})

	t.Run("missing inner url", func(t *testing.T) {
		_, err := models.ParseWrappedString("https://host/")
		assert.True(t, errors.HasCode(err, errors.CodeParse))
	})

	t.Run("unparsable inner url", func(t *testing.T) {
		_, err := models.ParseWrapped(&url.URL{Path: "/http://[::1/attachments/1/2/a.png"})
		assert.True(t, errors.HasCode(err, errors.CodeParse))
	})

	t.Run("partial window on outer query", func(t *testing.T) {
		_, err := models.ParseWrappedString("https://host/%2Fattachments%2F10%2F20%2Ffile.png?ex=65a0")
		assert.True(t, errors.HasCode(err, errors.CodeParse))
	})
}

func TestRender(t *testing.T) {
	link := models.SignedURL{
		Identity: models.Identity{ChannelID: 10, AttachmentID: 20, Filename: "file.png"},
		Window: &models.ValidityWindow{
			ExpiresAt: unix(0x65b0),
			IssuedAt:  unix(0x65a9),
			Signature: []byte{0xdd, 0xee, 0xff},
		},
	}
	assert.Equal(t, "https://cdn.discordapp.com/attachments/10/20/file.png?ex=65b0&is=65a9&hm=ddeeff", link.String())
	assert.Equal(t, "https://media.example/attachments/10/20/file.png?ex=65b0&is=65a9&hm=ddeeff", link.Render("https://media.example/"))

	link.Window = nil
	assert.Equal(t, "https://cdn.discordapp.com/attachments/10/20/file.png", link.String())
}

func TestRoundTrip(t *testing.T) {
	values := []models.SignedURL{
		{Identity: models.Identity{ChannelID: 1, AttachmentID: 2, Filename: "a.png"}},
		{Identity: models.Identity{ChannelID: 18446744073709551615, AttachmentID: 0, Filename: "x"}, Window: sampleWindow()},
		{Identity: models.Identity{ChannelID: 7, AttachmentID: 8, Filename: "my file #1?.tar.gz"}, Window: sampleWindow()},
		{Identity: models.Identity{ChannelID: 7, AttachmentID: 8, Filename: "slash/inside"}, Window: &models.ValidityWindow{
			ExpiresAt: unix(-3600),
			IssuedAt:  unix(models.MaxUnixSeconds),
			Signature: []byte{0x00, 0x01, 0xff},
		}},
	}
	for _, v := range values {
		t.Run(v.Filename, func(t *testing.T) {
			got, err := models.Parse(v.String())
			require.NoError(t, err)
			assert.True(t, v.Equal(got), "round trip mismatch: %s", v.String())
		})
	}
}

func TestCacheKey_IdentityOnly(t *testing.T) {
	base := models.SignedURL{Identity: models.Identity{ChannelID: 10, AttachmentID: 20, Filename: "file.png"}}
	renamed := base
	renamed.Filename = "other.jpg"
	signed := base
	signed.Window = sampleWindow()

	assert.Equal(t, "a/14", base.CacheKey())
	assert.Equal(t, base.CacheKey(), renamed.CacheKey())
	assert.Equal(t, base.CacheKey(), signed.CacheKey())

	other := base
	other.AttachmentID = 21
	assert.NotEqual(t, base.CacheKey(), other.CacheKey())
}

func TestEqual_ComparesSignatureBytes(t *testing.T) {
	a := models.SignedURL{Identity: models.Identity{ChannelID: 1, AttachmentID: 2, Filename: "a"}, Window: sampleWindow()}
	b := models.SignedURL{Identity: a.Identity, Window: sampleWindow()}
	assert.True(t, a.Equal(b))

	b.Window.Signature[0] = 0x00
	assert.False(t, a.Equal(b))

	b.Window = nil
	assert.False(t, a.Equal(b))
	assert.False(t, b.Equal(a))
}

func TestEffectiveExpiryBoundary(t *testing.T) {
	now := unix(1_700_000_000)
	margin := 30 * time.Minute

	fresh := &models.ValidityWindow{ExpiresAt: now.Add(margin + time.Second)}
	stale := &models.ValidityWindow{ExpiresAt: now.Add(margin - time.Second)}
	exact := &models.ValidityWindow{ExpiresAt: now.Add(margin)}

	assert.False(t, fresh.EffectivelyExpired(now, margin))
	assert.True(t, stale.EffectivelyExpired(now, margin))
	assert.True(t, exact.EffectivelyExpired(now, margin))

	assert.True(t, models.SignedURL{Window: fresh}.UsableAt(now, margin))
	assert.False(t, models.SignedURL{Window: stale}.UsableAt(now, margin))
	assert.False(t, models.SignedURL{}.UsableAt(now, margin))
}
