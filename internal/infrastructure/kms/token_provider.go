// Package kms resolves the credentials argproxy presents to the upstream API.
// The bot token is either configured inline or read from a HashiCorp Vault KVv2 secret.
package kms

import (
	"context"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/argproxy/internal/config"
	"github.com/turtacn/argproxy/pkg/errors"
	"github.com/turtacn/argproxy/pkg/logger"
)

// TokenProvider supplies the bot token for upstream requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider returns a fixed token.
type StaticTokenProvider string

// Token implements TokenProvider.
func (p StaticTokenProvider) Token(context.Context) (string, error) {
	if p == "" {
		return "", errors.ErrInternal("bot token is not configured")
	}
	return string(p), nil
}

const tokenCacheKey = "bot_token"

// VaultTokenProvider reads the bot token from a KVv2 secret and keeps it in a short-lived L1 cache.
type VaultTokenProvider struct {
	client     *vault.Client
	mountPath  string
	secretPath string
	secretKey  string
	l1Cache    *cache.Cache
	sf         singleflight.Group
	logger     logger.Logger
}

// NewVaultClient creates a Vault API client from configuration.
func NewVaultClient(cfg *config.VaultConfig) (*vault.Client, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, err
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return client, nil
}

// NewVaultTokenProvider creates a provider reading cfg.SecretKey from cfg.MountPath/cfg.SecretPath.
func NewVaultTokenProvider(cfg *config.VaultConfig, client *vault.Client, log logger.Logger) *VaultTokenProvider {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &VaultTokenProvider{
		client:     client,
		mountPath:  cfg.MountPath,
		secretPath: cfg.SecretPath,
		secretKey:  cfg.SecretKey,
		l1Cache:    cache.New(ttl, 2*ttl),
		logger:     log.WithComponent("vault_token_provider"),
	}
}

// Token implements TokenProvider.
func (p *VaultTokenProvider) Token(ctx context.Context) (string, error) {
	if v, ok := p.l1Cache.Get(tokenCacheKey); ok {
		return v.(string), nil
	}

	v, err, _ := p.sf.Do(tokenCacheKey, func() (interface{}, error) {
		secret, err := p.client.KVv2(p.mountPath).Get(ctx, p.secretPath)
		if err != nil {
			p.logger.Error(ctx, "failed to read bot token from Vault", err,
				logger.String("secret_path", p.secretPath))
			return nil, errors.ErrInternal("could not read bot token from vault").WithCause(err)
		}
		if secret == nil || secret.Data == nil {
			return nil, errors.ErrInternal(fmt.Sprintf("secret %s not found in vault", p.secretPath))
		}
		token, ok := secret.Data[p.secretKey].(string)
		if !ok || token == "" {
			return nil, errors.ErrInternal(fmt.Sprintf("%s not found or not a string in vault secret", p.secretKey))
		}
		p.l1Cache.SetDefault(tokenCacheKey, token)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token, e.g. after the upstream rejected it.
func (p *VaultTokenProvider) Invalidate() {
	p.l1Cache.Delete(tokenCacheKey)
}

// NewTokenProvider picks the Vault provider when enabled and the inline token otherwise.
func NewTokenProvider(vaultCfg *config.VaultConfig, inlineToken string, log logger.Logger) (TokenProvider, error) {
	if !vaultCfg.Enabled {
		return StaticTokenProvider(inlineToken), nil
	}
	client, err := NewVaultClient(vaultCfg)
	if err != nil {
		return nil, errors.ErrInvalidConfig("failed to create vault client").WithCause(err)
	}
	return NewVaultTokenProvider(vaultCfg, client, log), nil
}
