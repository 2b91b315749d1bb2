// Package monitoring provides adapters to connect the domain's metrics interface with a concrete implementation like Prometheus.
package monitoring

import (
	"time"

	"github.com/turtacn/argproxy/internal/domain/service"
)

// MetricsAdapter implements the domain's service.Metrics interface, sending metrics to a Prometheus backend.
// MetricsAdapter 实现了域的 service.Metrics 接口，将指标发送到 Prometheus 后端。
type MetricsAdapter struct {
	metrics *Metrics
}

// NewMetricsAdapter creates a new adapter that wraps a concrete Prometheus Metrics object,
// satisfying the domain's Metrics interface.
// NewMetricsAdapter 创建一个包装具体 Prometheus Metrics 对象的新适配器。
func NewMetricsAdapter(metrics *Metrics) service.Metrics {
	return &MetricsAdapter{metrics: metrics}
}

// RecordResolution delegates the call to the underlying Prometheus Metrics object.
func (a *MetricsAdapter) RecordResolution(outcome service.Outcome, duration time.Duration) {
	a.metrics.RecordResolution(string(outcome), duration)
}

// RecordResolveError delegates the call to the underlying Prometheus Metrics object.
func (a *MetricsAdapter) RecordResolveError(code string) {
	a.metrics.RecordResolveError(code)
}

// RecordRefresh delegates the call to the underlying Prometheus Metrics object.
func (a *MetricsAdapter) RecordRefresh(success bool, duration time.Duration) {
	a.metrics.RecordRefresh(success, duration)
}

// RecordStoreOperation delegates the call to the underlying Prometheus Metrics object.
func (a *MetricsAdapter) RecordStoreOperation(backend, operation string, success bool, duration time.Duration) {
	a.metrics.RecordStoreOperation(backend, operation, success, duration)
}

// RecordCacheAccess delegates the call to the underlying Prometheus Metrics object.
func (a *MetricsAdapter) RecordCacheAccess(tier string, hit bool) {
	a.metrics.RecordCacheAccess(tier, hit)
}
