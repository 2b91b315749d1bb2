// Package grpc exposes the standard gRPC health service so orchestrators can check argproxy
// the same way they check other gRPC workloads.
package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/turtacn/argproxy/pkg/constants"
	"github.com/turtacn/argproxy/pkg/logger"
)

// CheckFunc reports whether every dependency is reachable.
type CheckFunc func(ctx context.Context) bool

// HealthServer serves grpc.health.v1 and keeps its status in line with CheckFunc.
// HealthServer 提供 gRPC 健康检查服务，并根据依赖状态更新服务状态。
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	check    CheckFunc
	interval time.Duration
	log      logger.Logger
}

// NewHealthServer creates the gRPC server with the health service registered.
func NewHealthServer(check CheckFunc, interval time.Duration, log logger.Logger) *HealthServer {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	log = log.WithComponent("grpc_health")

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(NewInterceptorChain(log).Unary()...))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)

	return &HealthServer{
		server:   server,
		health:   hs,
		check:    check,
		interval: interval,
		log:      log,
	}
}

// Serve runs the status loop and serves on lis until ctx is done or Stop is called.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	s.refresh(ctx)
	go s.watch(ctx)

	s.log.Info(ctx, "Starting gRPC health server", logger.String("address", lis.Addr().String()))
	return s.server.Serve(lis)
}

// Stop marks the service as not serving and stops the server gracefully.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

func (s *HealthServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *HealthServer) refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.check != nil && !s.check(ctx) {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(constants.ServiceName, status)
}
