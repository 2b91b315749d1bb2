// Package http wires the gin engine that fronts argproxy.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/argproxy/internal/config"
	"github.com/turtacn/argproxy/internal/infrastructure/monitoring"
	"github.com/turtacn/argproxy/internal/interfaces/http/handlers"
	"github.com/turtacn/argproxy/internal/interfaces/http/middleware"
	"github.com/turtacn/argproxy/pkg/logger"
)

// Router HTTP 路由器
type Router struct {
	engine        *gin.Engine
	config        *config.ServerConfig
	logger        logger.Logger
	metrics       *monitoring.Metrics
	gatherer      prometheus.Gatherer
	tracing       *monitoring.TracingManager
	linkHandler   *handlers.LinkHandler
	healthHandler *handlers.HealthHandler
	server        *http.Server
}

// NewRouter 创建路由器
func NewRouter(
	cfg *config.ServerConfig,
	log logger.Logger,
	metrics *monitoring.Metrics,
	gatherer prometheus.Gatherer,
	tracing *monitoring.TracingManager,
	linkHandler *handlers.LinkHandler,
	healthHandler *handlers.HealthHandler,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if tracing == nil {
		tracing = monitoring.NewNoopTracingManager(log)
	}
	r := &Router{
		engine:        gin.New(),
		config:        cfg,
		logger:        log.WithComponent("http_router"),
		metrics:       metrics,
		gatherer:      gatherer,
		tracing:       tracing,
		linkHandler:   linkHandler,
		healthHandler: healthHandler,
	}
	r.setupRoutes()
	r.server = &http.Server{
		Addr:           cfg.Addr(),
		Handler:        r.engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 全局中间件
	r.engine.Use(handlers.RecoveryMiddleware(r.logger))
	r.engine.Use(handlers.RequestIDMiddleware())
	if r.metrics != nil {
		r.engine.Use(middleware.ObservabilityMiddleware(r.tracing, r.metrics))
	}
	r.engine.Use(handlers.LoggingMiddleware(r.logger))

	origins := r.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.engine.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Location"},
		MaxAge:        12 * time.Hour,
	}))

	// 健康检查路由
	r.engine.GET("/health", r.healthHandler.HealthCheck)
	r.engine.GET("/ready", r.healthHandler.ReadinessCheck)
	r.engine.GET("/live", r.healthHandler.LivenessCheck)

	if r.gatherer != nil {
		r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	// Pprof 性能分析（仅在非生产环境）
	if !r.config.IsProduction() {
		pprof.Register(r.engine)
	}

	// Every other path is a link, bare or wrapped.
	r.engine.NoRoute(r.linkHandler.Redirect)
}

// Start 启动 HTTP 服务器; it blocks until the server stops.
func (r *Router) Start() error {
	r.logger.Info(context.Background(), "Starting HTTP server", logger.String("address", r.server.Addr))
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	r.logger.Info(ctx, "Stopping HTTP server...")
	return r.server.Shutdown(ctx)
}

// Engine exposes the gin engine, e.g. for httptest.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
