package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	linkCacheHits    prometheus.Counter
	linkCacheMisses  prometheus.Counter
	linkCacheHitRate prometheus.Gauge
	linkCacheKeys    prometheus.Gauge
	linkCacheBytes   prometheus.Gauge
	fetches          *prometheus.CounterVec
	fetchErrors      *prometheus.CounterVec
	grpcRequests     *prometheus.CounterVec
	grpcDuration     *prometheus.HistogramVec
	grpcErrors       *prometheus.CounterVec
}

// NewPrometheusExporter registers the kizuna metrics with reg.
// Pass prometheus.DefaultRegisterer to expose them through promhttp.Handler.
func NewPrometheusExporter(collector *Collector, reg prometheus.Registerer) *PrometheusExporter {
	factory := promauto.With(reg)
	return &PrometheusExporter{
		collector: collector,
		linkCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "kizuna_link_cache_hits_total",
			Help: "Total number of link payloads served from the cache",
		}),
		linkCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "kizuna_link_cache_misses_total",
			Help: "Total number of link payloads fetched from the adapter",
		}),
		linkCacheHitRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kizuna_link_cache_hit_rate",
			Help: "Current link cache hit rate (0.0 to 1.0)",
		}),
		linkCacheKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kizuna_link_cache_keys_current",
			Help: "Current number of cached link payloads",
		}),
		linkCacheBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kizuna_link_cache_memory_bytes",
			Help: "Approximate memory held by the link cache in bytes",
		}),
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kizuna_fetches_total",
				Help: "Total number of adapter fetches by kind",
			},
			[]string{"kind"},
		),
		fetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kizuna_fetch_errors_total",
				Help: "Total number of failed adapter fetches by kind",
			},
			[]string{"kind"},
		),
		grpcRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kizuna_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method"},
		),
		grpcDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kizuna_grpc_request_duration_seconds",
				Help:    "Duration of gRPC requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"method"},
		),
		grpcErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kizuna_grpc_errors_total",
				Help: "Total number of gRPC errors",
			},
			[]string{"method"},
		),
	}
}

// Update refreshes the gauges from the collector.
// Counters are updated as events happen, so this only needs to run periodically.
func (e *PrometheusExporter) Update() {
	m := e.collector.GetCacheMetrics()
	e.linkCacheHitRate.Set(m.HitRate)
	e.linkCacheKeys.Set(float64(m.KeysCurrent))
	e.linkCacheBytes.Set(float64(m.MemoryBytes))
}

// RecordRequest records a request in Prometheus.
func (e *PrometheusExporter) RecordRequest(method string) {
	e.grpcRequests.WithLabelValues(method).Inc()
}

// RecordDuration records a duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(method string, durationSeconds float64) {
	e.grpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordError records an error in Prometheus.
func (e *PrometheusExporter) RecordError(method string) {
	e.grpcErrors.WithLabelValues(method).Inc()
}

// RecordFetch records an adapter call.
func (e *PrometheusExporter) RecordFetch(kind string) {
	e.fetches.WithLabelValues(kind).Inc()
}

// RecordFetchError records a failed adapter call.
func (e *PrometheusExporter) RecordFetchError(kind string) {
	e.fetchErrors.WithLabelValues(kind).Inc()
}

// RecordLinkCacheHit records a link cache hit.
func (e *PrometheusExporter) RecordLinkCacheHit() {
	e.linkCacheHits.Inc()
}

// RecordLinkCacheMiss records a link cache miss.
func (e *PrometheusExporter) RecordLinkCacheMiss() {
	e.linkCacheMisses.Inc()
}
