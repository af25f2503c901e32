// Package metrics exposes Prometheus collectors for the collector service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal        *prometheus.CounterVec
	detailsTotal         *prometheus.CounterVec
	retryQuotaEvents     *prometheus.CounterVec
	feedFetchesTotal     *prometheus.CounterVec
	genreChartsTotal     *prometheus.CounterVec
	genreCostSeconds     *prometheus.HistogramVec
	activeDetailWorkers  prometheus.Gauge
	retryPassesTotal     prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		requestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_requests_total",
				Help: "Total outbound HTTP requests, labeled by path and outcome.",
			},
			[]string{"path", "outcome"},
		)

		detailsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_details_total",
				Help: "Total collection detail resolutions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		retryQuotaEvents = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_retry_quota_events_total",
				Help: "Retry ledger mutations, labeled by event.",
			},
			[]string{"event"},
		)

		feedFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_feed_fetches_total",
				Help: "Feed retrievals, labeled by result.",
			},
			[]string{"result"},
		)

		genreChartsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_genre_charts_total",
				Help: "Top chart fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		genreCostSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_genre_cost_seconds",
				Help:    "Histogram of per-item processing cost, labeled by genre.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"genre"},
		)

		activeDetailWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_active_detail_workers",
				Help: "Number of detail workers currently fetching.",
			},
		)

		retryPassesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "collector_retry_passes_total",
				Help: "Total ledger retry passes executed.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest increments the outbound request counter.
func ObserveRequest(path, outcome string) {
	if requestsTotal == nil {
		return
	}
	requestsTotal.WithLabelValues(path, outcome).Inc()
}

// ObserveDetail increments the detail resolution counter.
func ObserveDetail(outcome string) {
	if detailsTotal == nil {
		return
	}
	detailsTotal.WithLabelValues(outcome).Inc()
}

// ObserveQuotaEvent increments the retry ledger mutation counter.
func ObserveQuotaEvent(event string) {
	if retryQuotaEvents == nil {
		return
	}
	retryQuotaEvents.WithLabelValues(event).Inc()
}

// ObserveFeedFetch increments the feed retrieval counter.
func ObserveFeedFetch(result string) {
	if feedFetchesTotal == nil {
		return
	}
	feedFetchesTotal.WithLabelValues(result).Inc()
}

// ObserveGenreChart increments the chart fetch counter.
func ObserveGenreChart(outcome string) {
	if genreChartsTotal == nil {
		return
	}
	genreChartsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGenreCost records per-item processing cost for a genre.
func ObserveGenreCost(genre string, d time.Duration) {
	if genreCostSeconds == nil {
		return
	}
	genreCostSeconds.WithLabelValues(genre).Observe(d.Seconds())
}

// IncActiveDetailWorkers increments the active detail workers gauge.
func IncActiveDetailWorkers() {
	if activeDetailWorkers == nil {
		return
	}
	activeDetailWorkers.Inc()
}

// DecActiveDetailWorkers decrements the active detail workers gauge.
func DecActiveDetailWorkers() {
	if activeDetailWorkers == nil {
		return
	}
	activeDetailWorkers.Dec()
}

// ObserveRetryPass increments the ledger retry pass counter.
func ObserveRetryPass() {
	if retryPassesTotal == nil {
		return
	}
	retryPassesTotal.Inc()
}
