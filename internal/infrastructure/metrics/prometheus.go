package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	cacheHitRate     prometheus.Gauge
	cacheKeys        prometheus.Gauge
	cacheMemoryBytes prometheus.Gauge
	calls            *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	errors           *prometheus.CounterVec
}

// NewPrometheusExporter creates an exporter whose metrics are registered
// with reg. Cache counters are read from the collector on scrape.
func NewPrometheusExporter(collector *Collector, reg prometheus.Registerer) *PrometheusExporter {
	factory := promauto.With(reg)

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "remotemodel_filter_cache_hits_total",
		Help: "Total number of compiled where-clause cache hits",
	}, func() float64 { return float64(collector.GetCacheMetrics().Hits) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "remotemodel_filter_cache_misses_total",
		Help: "Total number of compiled where-clause cache misses",
	}, func() float64 { return float64(collector.GetCacheMetrics().Misses) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "remotemodel_filter_cache_evictions_total",
		Help: "Total number of where-clause programs evicted due to memory limits",
	}, func() float64 { return float64(collector.GetCacheMetrics().Evictions) })

	return &PrometheusExporter{
		collector: collector,
		cacheHitRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "remotemodel_filter_cache_hit_rate",
			Help: "Current where-clause cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "remotemodel_filter_cache_keys_current",
			Help: "Current number of compiled where-clause programs",
		}),
		cacheMemoryBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "remotemodel_filter_cache_memory_bytes",
			Help: "Estimated memory held by compiled where-clause programs in bytes",
		}),
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotemodel_calls_total",
				Help: "Total number of model method invocations",
			},
			[]string{"operation"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remotemodel_call_duration_seconds",
				Help:    "Duration of model method invocations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"operation"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotemodel_call_errors_total",
				Help: "Total number of failed model method invocations",
			},
			[]string{"operation", "code"},
		),
	}
}

// Update refreshes gauge metrics from the collector.
// This should be called periodically (e.g., every 10 seconds).
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cacheMetrics.HitRate)
	e.cacheKeys.Set(float64(cacheMetrics.KeysCurrent))
	e.cacheMemoryBytes.Set(float64(cacheMetrics.MemoryBytes))
}

// RecordCall records an invocation in Prometheus.
func (e *PrometheusExporter) RecordCall(operation string) {
	e.calls.WithLabelValues(operation).Inc()
}

// RecordDuration records a duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(operation string, durationSeconds float64) {
	e.duration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordError records a failed invocation with its gRPC status code.
func (e *PrometheusExporter) RecordError(operation, code string) {
	e.errors.WithLabelValues(operation, code).Inc()
}
