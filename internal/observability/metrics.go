// Package observability holds the Prometheus metrics of the analyzer.
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the counters and histograms exported on /metrics.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	// UpstreamRequests counts search API calls, labeled by transport and status class.
	UpstreamRequests *prometheus.CounterVec

	// UpstreamDuration observes search API latency in seconds, labeled by transport.
	UpstreamDuration *prometheus.HistogramVec

	// RankedFetches counts completed ranked fetches, labeled by transport and score field.
	RankedFetches *prometheus.CounterVec

	// PagesPerFetch observes how many pages a ranked fetch needed.
	PagesPerFetch *prometheus.HistogramVec

	// FetchStops counts why ranked fetches stopped paginating.
	FetchStops *prometheus.CounterVec

	// TrendTermFailures counts terms whose trend could not be built.
	TrendTermFailures prometheus.Counter

	// CountDegradations counts aggregate totals reported as unavailable, labeled by kind.
	CountDegradations *prometheus.CounterVec

	// CacheLookups counts window count cache lookups, labeled by result.
	CacheLookups *prometheus.CounterVec
}

// NewMetrics registers all metrics with reg under namespace
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of search API requests",
		}, []string{"transport", "status"}),
		UpstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Search API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport"}),
		RankedFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranked_fetches_total",
			Help:      "Total number of completed ranked fetches",
		}, []string{"transport", "field"}),
		PagesPerFetch: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ranked_fetch_pages",
			Help:      "Pages requested per ranked fetch",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}, []string{"transport"}),
		FetchStops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranked_fetch_stops_total",
			Help:      "Ranked fetch terminations by reason",
		}, []string{"transport", "reason"}),
		TrendTermFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trend_term_failures_total",
			Help:      "Total number of trend terms that failed",
		}),
		CountDegradations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "count_degradations_total",
			Help:      "Aggregate totals reported as unavailable",
		}, []string{"kind"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_count_cache_lookups_total",
			Help:      "Window count cache lookups by result",
		}, []string{"result"}),
	}
}

// ObserveUpstream records one search API call. status 0 means the request never completed.
func (m *Metrics) ObserveUpstream(transport string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(transport, statusClass(status)).Inc()
	m.UpstreamDuration.WithLabelValues(transport).Observe(elapsed.Seconds())
}

// ObserveRankedFetch records a finished ranked fetch
func (m *Metrics) ObserveRankedFetch(transport, field string, pages int, reason string) {
	if m == nil {
		return
	}
	m.RankedFetches.WithLabelValues(transport, field).Inc()
	m.PagesPerFetch.WithLabelValues(transport).Observe(float64(pages))
	m.FetchStops.WithLabelValues(transport, reason).Inc()
}

func (m *Metrics) IncTrendTermFailure() {
	if m == nil {
		return
	}
	m.TrendTermFailures.Inc()
}

func (m *Metrics) IncCountDegradation(kind string) {
	if m == nil {
		return
	}
	m.CountDegradations.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return fmt.Sprintf("%dxx", status/100)
}
