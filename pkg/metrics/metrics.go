// Package metrics defines the Prometheus metric collectors used across the
// index subsystem and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the index subsystem.
type Metrics struct {
	CommitsTotal       *prometheus.CounterVec
	CommitDuration     *prometheus.HistogramVec
	MutationsBuffered  prometheus.Gauge
	QueriesTotal       *prometheus.CounterVec
	QueryDuration      *prometheus.HistogramVec
	RestoredDocsTotal  *prometheus.CounterVec
	RowsScannedTotal   prometheus.Counter
	RowsMatchedTotal   prometheus.Counter
	RowsSkippedTotal   *prometheus.CounterVec
	FeedPublishedTotal *prometheus.CounterVec
	FeedConsumedTotal  *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		CommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_commits_total",
				Help: "Total index transaction commits by backend and status.",
			},
			[]string{"backend", "status"},
		),
		CommitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_commit_duration_seconds",
				Help:    "Index transaction commit latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"backend"},
		),
		MutationsBuffered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_mutations_buffered",
				Help: "Documents with buffered mutations in open transactions.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_queries_total",
				Help: "Total index queries by backend, kind (structured, raw), and status.",
			},
			[]string{"backend", "kind", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_query_duration_seconds",
				Help:    "Index query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"backend"},
		),
		RestoredDocsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_restored_docs_total",
				Help: "Documents rewritten by restore operations, by backend.",
			},
			[]string{"backend"},
		),
		RowsScannedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scan_rows_total",
				Help: "Storage rows seen by the scan driver.",
			},
		),
		RowsMatchedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scan_rows_matched_total",
				Help: "Rows whose grounding query matched at least one entry.",
			},
		),
		RowsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_rows_skipped_total",
				Help: "Rows skipped by the scan driver, by reason (key_filter, no_match).",
			},
			[]string{"reason"},
		),
		FeedPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_messages_published_total",
				Help: "Mutation feed messages published, by status.",
			},
			[]string{"status"},
		),
		FeedConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_messages_consumed_total",
				Help: "Mutation feed messages consumed, by status.",
			},
			[]string{"status"},
		),
	}

	prometheus.MustRegister(
		m.CommitsTotal,
		m.CommitDuration,
		m.MutationsBuffered,
		m.QueriesTotal,
		m.QueryDuration,
		m.RestoredDocsTotal,
		m.RowsScannedTotal,
		m.RowsMatchedTotal,
		m.RowsSkippedTotal,
		m.FeedPublishedTotal,
		m.FeedConsumedTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
