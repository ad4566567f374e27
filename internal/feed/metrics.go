package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Metrics names as constants for consistency.
const (
	MetricFeedPageRequests         = "feed_page_requests_total"
	MetricFeedPageDuration         = "feed_page_duration_seconds"
	MetricFeedSnapshotLookups      = "feed_snapshot_lookups_total"
	MetricFeedSnapshotBuilds       = "feed_snapshot_builds_total"
	MetricFeedSnapshotBuildErrors  = "feed_snapshot_build_errors_total"
	MetricFeedSnapshotBuildSeconds = "feed_snapshot_build_duration_seconds"
	MetricFeedSnapshotItems        = "feed_snapshot_items"
	MetricFeedUpstreamRequests     = "feed_upstream_requests_total"
	MetricFeedUpstreamBreakerState = "feed_upstream_breaker_state"
)

// Page request outcomes.
const (
	OutcomeOK                  = "ok"
	OutcomeReset               = "reset"
	OutcomeInvalidPageSize     = "invalid_page_size"
	OutcomeMalformedCursor     = "malformed_cursor"
	OutcomeUpstreamUnavailable = "upstream_unavailable"
	OutcomeInternalError       = "internal_error"
)

// Snapshot lookup results.
const (
	LookupHit       = "hit"
	LookupRemoteHit = "remote_hit"
	LookupMiss      = "miss"
	LookupEvicted   = "evicted"
)

// Metrics contains Prometheus metrics for feed paging.
// All operations are thread-safe and safe on a nil *Metrics.
type Metrics struct {
	pageRequests         *prometheus.CounterVec
	pageDuration         prometheus.Histogram
	snapshotLookups      *prometheus.CounterVec
	snapshotBuilds       prometheus.Counter
	snapshotBuildErrors  prometheus.Counter
	snapshotBuildSeconds prometheus.Histogram
	snapshotItems        prometheus.Gauge
	upstreamRequests     *prometheus.CounterVec
	upstreamBreaker      prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		pageRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricFeedPageRequests,
			Help: "Total number of feed page requests by outcome",
		}, []string{"outcome"}),
		pageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricFeedPageDuration,
			Help:    "Histogram of feed page request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		snapshotLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricFeedSnapshotLookups,
			Help: "Total number of candidate snapshot lookups by result",
		}, []string{"result"}),
		snapshotBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFeedSnapshotBuilds,
			Help: "Total number of candidate snapshots built from the signal store",
		}),
		snapshotBuildErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFeedSnapshotBuildErrors,
			Help: "Total number of failed candidate snapshot builds",
		}),
		snapshotBuildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricFeedSnapshotBuildSeconds,
			Help:    "Histogram of candidate snapshot build duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}),
		snapshotItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricFeedSnapshotItems,
			Help: "Number of candidate items in the most recently built snapshot",
		}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricFeedUpstreamRequests,
			Help: "Total number of signal store calls by result",
		}, []string{"result"}),
		upstreamBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricFeedUpstreamBreakerState,
			Help: "Signal store circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObservePage records the outcome and duration of a page request.
func (m *Metrics) ObservePage(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.pageRequests.WithLabelValues(outcome).Inc()
	m.pageDuration.Observe(seconds)
}

// IncSnapshotLookup increments the snapshot lookup counter for result.
func (m *Metrics) IncSnapshotLookup(result string) {
	if m == nil {
		return
	}
	m.snapshotLookups.WithLabelValues(result).Inc()
}

// ObserveSnapshotBuild records a snapshot build.
func (m *Metrics) ObserveSnapshotBuild(seconds float64, items int, err error) {
	if m == nil {
		return
	}
	m.snapshotBuildSeconds.Observe(seconds)
	if err != nil {
		m.snapshotBuildErrors.Inc()
		return
	}
	m.snapshotBuilds.Inc()
	m.snapshotItems.Set(float64(items))
}

// IncUpstreamRequest increments the signal store call counter for result.
func (m *Metrics) IncUpstreamRequest(result string) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(result).Inc()
}

// SetBreakerState records the circuit breaker state.
func (m *Metrics) SetBreakerState(state gobreaker.State) {
	if m == nil {
		return
	}
	m.upstreamBreaker.Set(breakerStateValue(state))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.pageRequests,
		m.pageDuration,
		m.snapshotLookups,
		m.snapshotBuilds,
		m.snapshotBuildErrors,
		m.snapshotBuildSeconds,
		m.snapshotItems,
		m.upstreamRequests,
		m.upstreamBreaker,
	}
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
