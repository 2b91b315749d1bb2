package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/argproxy/internal/config"
	"github.com/turtacn/argproxy/internal/domain/models"
	"github.com/turtacn/argproxy/internal/domain/service/mocks"
	"github.com/turtacn/argproxy/internal/infrastructure/kms"
	"github.com/turtacn/argproxy/pkg/errors"
)

func testLink(t *testing.T) models.SignedURL {
	t.Helper()
	link, err := models.Parse("https://cdn.discordapp.com/attachments/10/20/file.png?ex=6553d4e0&is=6553c6d0&hm=aabbcc")
	require.NoError(t, err)
	return link
}

type invalidatingTokens struct {
	invalidated bool
}

func (p *invalidatingTokens) Token(context.Context) (string, error) { return "tkn", nil }
func (p *invalidatingTokens) Invalidate()                          { p.invalidated = true }

func TestRefreshClient_Success(t *testing.T) {
	var got refreshRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v9/attachments/refresh-urls", r.URL.Path)
		assert.Equal(t, "Bot secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"refreshed_urls":[{"original":"x","refreshed":"https://cdn.discordapp.com/attachments/10/20/file.png?ex=65b0&is=65a9&hm=ddeeff"}]}`))
	}))
	defer ts.Close()

	metrics := new(mocks.MockMetrics)
	metrics.On("RecordRefresh", true, mock.AnythingOfType("time.Duration")).Return()

	client := NewRefreshClient(&config.DiscordConfig{
		RefreshURL: ts.URL + "/api/v9/attachments/refresh-urls",
		UserAgent:  "test-agent",
	}, kms.StaticTokenProvider("secret-token"), nil, metrics, nil)

	refreshed, err := client.Refresh(context.Background(), testLink(t))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.discordapp.com/attachments/10/20/file.png?ex=65b0&is=65a9&hm=ddeeff", refreshed)
	assert.Equal(t, []string{"https://cdn.discordapp.com/attachments/10/20/file.png?ex=6553d4e0&is=6553c6d0&hm=aabbcc"}, got.AttachmentURLs)
	metrics.AssertExpectations(t)
}

func TestRefreshClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non 2xx",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"refreshed_urls":`))
			},
		},
		{
			name: "empty list",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"refreshed_urls":[]}`))
			},
		},
		{
			name: "missing list",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			client := NewRefreshClient(&config.DiscordConfig{RefreshURL: ts.URL},
				kms.StaticTokenProvider("t"), nil, nil, nil)
			_, err := client.Refresh(context.Background(), testLink(t))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeUpstreamRefresh))
		})
	}
}

func TestRefreshClient_TransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	client := NewRefreshClient(&config.DiscordConfig{RefreshURL: url, Timeout: time.Second},
		kms.StaticTokenProvider("t"), nil, nil, nil)
	_, err := client.Refresh(context.Background(), testLink(t))
	assert.True(t, errors.HasCode(err, errors.CodeUpstreamRefresh))
}

func TestRefreshClient_MissingToken(t *testing.T) {
	client := NewRefreshClient(&config.DiscordConfig{RefreshURL: "http://127.0.0.1:1"},
		kms.StaticTokenProvider(""), nil, nil, nil)
	_, err := client.Refresh(context.Background(), testLink(t))
	assert.True(t, errors.HasCode(err, errors.CodeUpstreamRefresh))
}

func TestRefreshClient_UnauthorizedInvalidatesToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	tokens := &invalidatingTokens{}
	client := NewRefreshClient(&config.DiscordConfig{RefreshURL: ts.URL, AuthScheme: "Bearer"}, tokens, nil, nil, nil)
	_, err := client.Refresh(context.Background(), testLink(t))
	assert.True(t, errors.HasCode(err, errors.CodeUpstreamRefresh))
	assert.True(t, tokens.invalidated)
}

func TestRefreshClient_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewRefreshClient(&config.DiscordConfig{RefreshURL: ts.URL}, kms.StaticTokenProvider("t"), nil, nil, nil)
	_, err := client.Refresh(ctx, testLink(t))
	assert.True(t, errors.HasCode(err, errors.CodeUpstreamRefresh))
	assert.ErrorIs(t, err, context.Canceled)
}
