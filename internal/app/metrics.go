package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "polytracker"

// Metrics holds the Prometheus collectors for the service. Each instance
// owns its own registry. All methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Upstream metrics
	UpstreamRequests      *prometheus.CounterVec
	UpstreamLatency       *prometheus.HistogramVec
	RateLimitRetries      prometheus.Counter
	PartialClosedFetches  prometheus.Counter
	ClosedPositionsPerRun prometheus.Histogram

	// Aggregation metrics
	Aggregations        *prometheus.CounterVec
	AggregationDuration *prometheus.HistogramVec

	// Refresh loop metrics
	RefreshRuns       *prometheus.CounterVec
	RefreshAddresses  *prometheus.CounterVec
	LastRefreshUnix   prometheus.Gauge
	RefreshRunSeconds prometheus.Histogram
}

// NewMetrics creates a Metrics instance with all collectors registered on a
// fresh registry, plus the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by namespace and result (hit or miss)",
		}, []string{"namespace", "result"}),

		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Data API requests by endpoint and HTTP status (0 = transport error)",
		}, []string{"endpoint", "status"}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Data API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		RateLimitRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "upstream",
			Name:      "rate_limit_retries_total",
			Help:      "Closed-positions page retries after HTTP 429",
		}),
		PartialClosedFetches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "upstream",
			Name:      "partial_closed_fetches_total",
			Help:      "Closed-positions fetches that stopped early and kept a partial result",
		}),
		ClosedPositionsPerRun: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "upstream",
			Name:      "closed_positions_rows",
			Help:      "Rows accumulated per closed-positions fetch",
			Buckets:   []float64{0, 10, 50, 100, 250, 500, 1000, 2500, 5000},
		}),

		Aggregations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "aggregator",
			Name:      "runs_total",
			Help:      "Trader aggregations by mode and result",
		}, []string{"mode", "result"}),
		AggregationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "aggregator",
			Name:      "duration_seconds",
			Help:      "Trader aggregation duration on cache miss",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode"}),

		RefreshRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "refresh",
			Name:      "runs_total",
			Help:      "Background refresh runs by result",
		}, []string{"result"}),
		RefreshAddresses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "refresh",
			Name:      "addresses_total",
			Help:      "Addresses processed by the refresh loop by result",
		}, []string{"result"}),
		LastRefreshUnix: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "refresh",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last refresh run finished",
		}),
		RefreshRunSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "refresh",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full refresh run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
}

// RegisterCacheSize exposes the live cache entry count as a gauge.
func (m *Metrics) RegisterCacheSize(cache *TraderCache) {
	if m == nil || cache == nil {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Entries currently held in the trader cache",
	}, func() float64 { return float64(cache.Len()) })
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Helper functions for recording metrics

func (m *Metrics) RecordCacheLookup(namespace string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(namespace, result).Inc()
}

// ObserveUpstream matches the polymarketapi.Observer signature.
func (m *Metrics) ObserveUpstream(endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.UpstreamLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordRateLimitRetry() {
	if m == nil {
		return
	}
	m.RateLimitRetries.Inc()
}

func (m *Metrics) RecordClosedFetch(rows int, partial bool) {
	if m == nil {
		return
	}
	m.ClosedPositionsPerRun.Observe(float64(rows))
	if partial {
		m.PartialClosedFetches.Inc()
	}
}

func (m *Metrics) RecordAggregation(mode AggregateMode, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Aggregations.WithLabelValues(mode.String(), result).Inc()
	m.AggregationDuration.WithLabelValues(mode.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordRefreshAddress(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RefreshAddresses.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRefreshRun(failed bool, finished time.Time, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "partial"
	}
	m.RefreshRuns.WithLabelValues(result).Inc()
	m.LastRefreshUnix.Set(float64(finished.Unix()))
	m.RefreshRunSeconds.Observe(elapsed.Seconds())
}
