package cli

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/argproxy/internal/application/dto"
	appservice "github.com/turtacn/argproxy/internal/application/service"
	"github.com/turtacn/argproxy/internal/config"
	domainservice "github.com/turtacn/argproxy/internal/domain/service"
	"github.com/turtacn/argproxy/internal/infrastructure/codec"
	"github.com/turtacn/argproxy/internal/infrastructure/discord"
	"github.com/turtacn/argproxy/internal/infrastructure/kms"
	"github.com/turtacn/argproxy/internal/infrastructure/monitoring"
	"github.com/turtacn/argproxy/internal/infrastructure/persistence"
	"github.com/turtacn/argproxy/pkg/logger"
)

func newInspectCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <link|key>",
		Short: "Print the record stored for a link or a store key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadForCommand(*configFile)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			store, err := persistence.OpenLinkStore(ctx, cfg, nil, log)
			if err != nil {
				return err
			}
			defer store.Close()

			return inspect(ctx, cmd, store, args[0])
		},
	}
}

func inspect(ctx context.Context, cmd *cobra.Command, store *persistence.LinkStoreHandle, arg string) error {
	key := arg
	if strings.Contains(arg, "attachments") {
		link, err := parseArg(arg)
		if err != nil {
			return err
		}
		key = link.CacheKey()
	}

	value, found, err := store.Store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no record stored under %s", key)
	}
	link, err := codec.DecodeSignedURL(value)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), newLinkView(link))
}

func newResolveCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <link>",
		Short: "Resolve a link once against the configured store and upstream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadForCommand(*configFile)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			u, err := url.Parse(args[0])
			if err != nil {
				return err
			}

			store, err := persistence.OpenLinkStore(ctx, cfg, nil, log)
			if err != nil {
				return err
			}
			defer store.Close()

			tokens, err := kms.NewTokenProvider(&cfg.Vault, cfg.Discord.Token, log)
			if err != nil {
				return err
			}
			resolver := domainservice.NewLinkResolver(store.Store,
				discord.NewRefreshClient(&cfg.Discord, tokens, nil, nil, log),
				codec.NewProtoCodec(),
				domainservice.ResolverOptions{
					ExpiryMargin:      cfg.Resolver.ExpiryMargin,
					CoalesceRefreshes: cfg.Resolver.CoalesceRefreshes,
					RefreshTimeout:    cfg.Discord.Timeout,
				},
				log)
			svc := appservice.NewLinkAppService(resolver, nil, nil, nil,
				appservice.LinkAppServiceOptions{CDNBaseURL: cfg.Discord.CDNBaseURL}, log)

			resp, err := svc.Resolve(ctx, &dto.ResolveLinkRequest{URL: u, RequestID: "cli"})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func loadForCommand(configFile string) (*config.Config, logger.Logger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}
	cfg.Log.Format = "console"
	log, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
