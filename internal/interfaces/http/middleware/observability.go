package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/argproxy/internal/infrastructure/monitoring"
)

// ProxyRoute labels requests that fell through to the link proxy.
const ProxyRoute = "/*target"

// ObservabilityMiddleware returns a Gin middleware that integrates Prometheus metrics and OpenTelemetry tracing.
// For each HTTP request, it continues any incoming trace, starts a server span and records request totals,
// duration and in-flight count labelled by route template.
// ObservabilityMiddleware 返回一个集成了 Prometheus 指标和 OpenTelemetry 跟踪的 Gin 中间件。
func ObservabilityMiddleware(tm *monitoring.TracingManager, metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.ActiveRequestsInc()
		defer metrics.ActiveRequestsDec()

		route := c.FullPath()
		if route == "" {
			route = ProxyRoute
		}

		ctx := tm.ExtractTraceContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tm.StartSpan(ctx, c.Request.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		metrics.ObserveRequest(c.Request.Method, route, status, time.Since(start))

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.String("http.client_ip", c.ClientIP()),
		)
	}
}
