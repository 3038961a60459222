// Package metrics 提供 Prometheus helper，包含 HTTP/gRPC 与行情业务指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trading"

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求计数（method, path, status）
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec
	// gRPC 请求计数（method, code）
	GRPCRequestsTotal *prometheus.CounterVec

	// 业务指标
	QuotesSavedTotal      prometheus.Counter
	QuoteCacheHitsTotal   prometheus.Counter
	QuoteCacheMissesTotal prometheus.Counter
	QuotesDeadLetterTotal prometheus.Counter
	StreamSubscribers     prometheus.Gauge
}

// New 创建并注册指标实例，每个实例使用独立的 Registry
func New(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		GRPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "grpc_requests_total",
			Help:      "Total gRPC requests",
		}, []string{"method", "code"}),
		QuotesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "quotes_saved_total",
			Help:      "Total crypto quotes accepted",
		}),
		QuoteCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "quote_cache_hits_total",
			Help:      "Latest-quote cache hits",
		}),
		QuoteCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "quote_cache_misses_total",
			Help:      "Latest-quote cache misses",
		}),
		QuotesDeadLetterTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "quotes_dead_letter_total",
			Help:      "Inbound quote messages sent to the dead-letter topic",
		}),
		StreamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "stream_subscribers",
			Help:      "Connected quote stream subscribers",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GRPCRequestsTotal,
		m.QuotesSavedTotal,
		m.QuoteCacheHitsTotal,
		m.QuoteCacheMissesTotal,
		m.QuotesDeadLetterTotal,
		m.StreamSubscribers,
	)

	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
