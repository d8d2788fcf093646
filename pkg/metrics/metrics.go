package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the filter
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec

	// Upstream metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
	UpstreamErrors          *prometheus.CounterVec

	// Decision metrics
	DecisionsTotal   *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec
	FailuresTotal    *prometheus.CounterVec
	ConflictsTotal   *prometheus.CounterVec
	SnapshotBytes    *prometheus.GaugeVec
	SnapshotCounters *prometheus.GaugeVec

	// Limit registry metrics
	LimitsLoaded *prometheus.GaugeVec
	ReloadsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates a new Metrics instance registered with the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimitfilter_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratelimitfilter_http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ratelimitfilter_http_requests_active",
				Help: "Number of active HTTP requests",
			},
			[]string{"method"},
		),

		UpstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimitfilter_upstream_requests_total",
				Help: "Total number of requests forwarded upstream",
			},
			[]string{"method", "status"},
		),
		UpstreamRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratelimitfilter_upstream_request_duration_seconds",
				Help:    "Upstream request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimitfilter_upstream_errors_total",
				Help: "Total number of failed upstream requests",
			},
			[]string{"error_type"},
		),

		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimitfilter_decisions_total",
				Help: "Total number of admission decisions by outcome",
			},
			[]string{"namespace", "outcome"},
		),
		DecisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratelimitfilter_decision_duration_seconds",
				Help:    "Admission decision latencies in seconds, storage round trips included",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"namespace", "outcome"},
		),
		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimitfilter_decision_failures_total",
				Help: "Total number of failed decisions by reason",
			},
			[]string{"namespace", "reason"},
		),
		ConflictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimitfilter_snapshot_conflicts_total",
				Help: "Total number of snapshot writes lost to a concurrent update",
			},
			[]string{"namespace"},
		),
		SnapshotBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ratelimitfilter_snapshot_bytes",
				Help: "Size of the last persisted counter snapshot",
			},
			[]string{"namespace"},
		),
		SnapshotCounters: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ratelimitfilter_snapshot_counters",
				Help: "Number of live counters in the last persisted snapshot",
			},
			[]string{"namespace"},
		),

		LimitsLoaded: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ratelimitfilter_limits_loaded",
				Help: "Number of limits currently in force",
			},
			[]string{"source"},
		),
		ReloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimitfilter_limit_reloads_total",
				Help: "Total number of limit reloads by result",
			},
			[]string{"source", "result"},
		),

		gatherer: gatherer,
	}
}

// ObserveDecision counts one decision and its latency
func (m *Metrics) ObserveDecision(namespace, outcome string, d time.Duration) {
	m.DecisionsTotal.WithLabelValues(namespace, outcome).Inc()
	m.DecisionDuration.WithLabelValues(namespace, outcome).Observe(d.Seconds())
}

// ObserveReload records a limit reload attempt
func (m *Metrics) ObserveReload(source string, limits int, err error) {
	if err != nil {
		m.ReloadsTotal.WithLabelValues(source, "error").Inc()
		return
	}
	m.ReloadsTotal.WithLabelValues(source, "success").Inc()
	m.LimitsLoaded.WithLabelValues(source).Set(float64(limits))
}

// Handler exposes the metrics gathered by this instance
func (m *Metrics) Handler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// NormalizePath normalizes the path for metrics labels to avoid high cardinality.
// Only the first segment is kept.
func NormalizePath(path string) string {
	path = strings.SplitN(path, "?", 2)[0]
	if path == "" || path == "/" {
		return "/"
	}
	trimmed := strings.TrimPrefix(path, "/")
	first, _, nested := strings.Cut(trimmed, "/")
	const maxLength = 50
	if len(first) > maxLength {
		first = first[:maxLength] + "..."
	}
	if nested {
		return "/" + first + "/*"
	}
	return "/" + first
}
