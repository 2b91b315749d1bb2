package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	grpcCodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/turtacn/argproxy/pkg/logger"
)

// InterceptorChain 拦截器链
type InterceptorChain struct {
	log logger.Logger
}

// NewInterceptorChain 创建拦截器链
func NewInterceptorChain(log logger.Logger) *InterceptorChain {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &InterceptorChain{log: log}
}

// Unary returns the interceptors in the order they should run.
func (ic *InterceptorChain) Unary() []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{
		ic.UnaryRecoveryInterceptor(),
		ic.UnaryLoggingInterceptor(),
	}
}

// UnaryRecoveryInterceptor 恢复拦截器(捕获 panic)
func (ic *InterceptorChain) UnaryRecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				ic.log.Error(ctx, "gRPC handler panic recovered", fmt.Errorf("%v", r),
					logger.String("method", info.FullMethod),
				)
				err = status.Errorf(grpcCodes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}

// UnaryLoggingInterceptor 日志拦截器
func (ic *InterceptorChain) UnaryLoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		startTime := time.Now()

		md, _ := metadata.FromIncomingContext(ctx)
		var userAgent string
		if agents := md.Get("user-agent"); len(agents) > 0 {
			userAgent = agents[0]
		}

		resp, err := handler(ctx, req)

		statusCode := grpcCodes.OK
		if err != nil {
			if st, ok := status.FromError(err); ok {
				statusCode = st.Code()
			}
		}

		ic.log.Debug(ctx, "gRPC request completed",
			logger.String("method", info.FullMethod),
			logger.String("user_agent", userAgent),
			logger.Int64("duration_ms", time.Since(startTime).Milliseconds()),
			logger.String("status", statusCode.String()),
		)

		return resp, err
	}
}
