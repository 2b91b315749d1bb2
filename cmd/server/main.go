package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	appservice "github.com/turtacn/argproxy/internal/application/service"
	"github.com/turtacn/argproxy/internal/config"
	"github.com/turtacn/argproxy/internal/domain/repository"
	domainservice "github.com/turtacn/argproxy/internal/domain/service"
	"github.com/turtacn/argproxy/internal/infrastructure/codec"
	"github.com/turtacn/argproxy/internal/infrastructure/discord"
	"github.com/turtacn/argproxy/internal/infrastructure/events"
	"github.com/turtacn/argproxy/internal/infrastructure/kms"
	"github.com/turtacn/argproxy/internal/infrastructure/monitoring"
	"github.com/turtacn/argproxy/internal/infrastructure/persistence"
	grpchandlers "github.com/turtacn/argproxy/internal/interfaces/grpc"
	httpapi "github.com/turtacn/argproxy/internal/interfaces/http"
	"github.com/turtacn/argproxy/internal/interfaces/http/handlers"
	"github.com/turtacn/argproxy/pkg/logger"
)

func main() {
	configFile := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// Load config
	loader := config.NewLoader(*configFile)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, loader, appLogger); err != nil {
		appLogger.Error(context.Background(), "argproxy stopped with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, loader *config.Loader, appLogger logger.Logger) error {
	// Hot-reload the log level
	if setter, ok := appLogger.(monitoring.LevelSetter); ok {
		loader.Watch(func(next *config.Config) {
			if err := setter.SetLevel(next.Log.Level); err != nil {
				appLogger.Warn(ctx, "ignoring invalid log level", logger.String("level", next.Log.Level))
				return
			}
			appLogger.Info(ctx, "log level reloaded", logger.String("level", next.Log.Level))
		}, func(err error) {
			appLogger.Warn(ctx, "config reload rejected", logger.Err(err))
		})
	}

	// Initialize tracing
	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, appLogger)
	if err != nil {
		return err
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)
	domainMetrics := monitoring.NewMetricsAdapter(metrics)

	// Initialize link store
	store, err := persistence.OpenLinkStore(ctx, cfg, domainMetrics, appLogger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Initialize upstream client
	tokens, err := kms.NewTokenProvider(&cfg.Vault, cfg.Discord.Token, appLogger)
	if err != nil {
		return err
	}
	refresher := discord.NewRefreshClient(&cfg.Discord, tokens, nil, domainMetrics, appLogger)

	publisher := events.NewPublisher(&cfg.Kafka, appLogger)
	defer publisher.Close()

	// Initialize services
	resolver := domainservice.NewLinkResolver(store.Store, refresher, codec.NewProtoCodec(),
		domainservice.ResolverOptions{
			ExpiryMargin:      cfg.Resolver.ExpiryMargin,
			CoalesceRefreshes: cfg.Resolver.CoalesceRefreshes,
			RefreshTimeout:    cfg.Discord.Timeout,
		}, appLogger)
	linkService := appservice.NewLinkAppService(resolver, publisher, domainMetrics, tracing,
		appservice.LinkAppServiceOptions{CDNBaseURL: cfg.Discord.CDNBaseURL}, appLogger)

	// Initialize handlers and servers
	healthHandler := handlers.NewHealthHandler(map[string]repository.HealthChecker{store.Backend: store.Health}, appLogger)
	router := httpapi.NewRouter(&cfg.Server, appLogger, metrics, registry, tracing,
		handlers.NewLinkHandler(linkService, appLogger), healthHandler)

	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr())
	if err != nil {
		return err
	}
	grpcServer := grpchandlers.NewHealthServer(healthHandler.Check, 10*time.Second, appLogger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(router.Start)
	g.Go(func() error {
		if err := grpcServer.Serve(gctx, grpcLis); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info(context.Background(), "Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		grpcServer.Stop()
		return router.Stop(shutdownCtx)
	})

	return g.Wait()
}
