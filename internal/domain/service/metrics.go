// Package service holds the link resolution domain logic and the contracts it depends on.
package service

import (
	"time"
)

// Metrics defines the interface for collecting resolution metrics.
// This abstraction allows the application layer to remain independent of the specific monitoring implementation (e.g., Prometheus).
// Metrics 定义了收集链接解析指标的接口。
// 这种抽象使应用层能够独立于具体的监控实现（例如 Prometheus）。
type Metrics interface {
	// RecordResolution records a successful resolution and how long it took.
	// RecordResolution 记录一次成功的解析及其耗时。
	RecordResolution(outcome Outcome, duration time.Duration)

	// RecordResolveError records a failed resolution by error code.
	// RecordResolveError 按错误码记录解析失败。
	RecordResolveError(code string)

	// RecordRefresh records the latency and result of an upstream refresh call.
	// RecordRefresh 记录上游刷新调用的延迟和结果。
	RecordRefresh(success bool, duration time.Duration)

	// RecordStoreOperation records the latency and result of a link store call.
	// RecordStoreOperation 记录链接存储调用的延迟和结果。
	RecordStoreOperation(backend, operation string, success bool, duration time.Duration)

	// RecordCacheAccess records a cache hit or miss.
	// RecordCacheAccess 记录缓存命中或未命中。
	RecordCacheAccess(tier string, hit bool)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) RecordResolution(Outcome, time.Duration)                   {}
func (NoopMetrics) RecordResolveError(string)                                 {}
func (NoopMetrics) RecordRefresh(bool, time.Duration)                         {}
func (NoopMetrics) RecordStoreOperation(string, string, bool, time.Duration) {}
func (NoopMetrics) RecordCacheAccess(string, bool)                            {}
