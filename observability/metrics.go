package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the central Prometheus registry for the lake: ingest
// throughput, rate-limit backoff, writer merge durations, and task
// supervisor queue depth.
type Metrics struct {
	registry *prometheus.Registry

	IngestRowsTotal      *prometheus.CounterVec
	IngestBatchesTotal   *prometheus.CounterVec
	IngestGapsTotal      *prometheus.CounterVec
	IngestOverlapsTotal  *prometheus.CounterVec
	RateLimitSleepsTotal *prometheus.CounterVec
	ExchangeErrorsTotal  *prometheus.CounterVec

	WriterMergeDuration *prometheus.HistogramVec
	WriterRowsPerWrite  *prometheus.HistogramVec
	WriterFailuresTotal *prometheus.CounterVec

	SupervisorTasksTotal *prometheus.CounterVec
	SupervisorQueueDepth *prometheus.GaugeVec

	QueryDuration  *prometheus.HistogramVec
	QueryCacheHits *prometheus.CounterVec
}

// NewMetrics constructs and registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		IngestRowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lake_ingest_rows_total",
			Help: "Rows written by the ingest pipeline, by exchange/symbol/data_type.",
		}, []string{"exchange", "symbol", "data_type"}),

		IngestBatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lake_ingest_batches_total",
			Help: "Connector fetch batches processed, by exchange/symbol/data_type.",
		}, []string{"exchange", "symbol", "data_type"}),

		IngestGapsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lake_ingest_gaps_total",
			Help: "Continuity gaps detected between consecutive batches.",
		}, []string{"exchange", "symbol"}),

		IngestOverlapsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lake_ingest_overlaps_total",
			Help: "Overlapping batches detected (harmless, deduped on write).",
		}, []string{"exchange", "symbol"}),

		RateLimitSleepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lake_rate_limit_sleeps_total",
			Help: "Connector sleeps triggered by HTTP 429 responses.",
		}, []string{"exchange"}),

		ExchangeErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lake_exchange_errors_total",
			Help: "Connector errors by exchange and error kind (banned, rate_limited, other).",
		}, []string{"exchange", "kind"}),

		WriterMergeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lake_writer_merge_duration_seconds",
			Help:    "Time to read-merge-write one day partition, including fsync and checksum.",
			Buckets: prometheus.DefBuckets,
		}, []string{"data_type"}),

		WriterRowsPerWrite: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lake_writer_rows_per_write",
			Help:    "Row count of each partition write after merge.",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		}, []string{"data_type"}),

		WriterFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lake_writer_failures_total",
			Help: "Writer failures by kind (data_integrity, corrupt_existing, schema_mismatch, disk_full, permission_denied, other).",
		}, []string{"kind"}),

		SupervisorTasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lake_supervisor_tasks_total",
			Help: "Supervisor tasks by terminal status (completed, failed).",
		}, []string{"status"}),

		SupervisorQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lake_supervisor_queue_depth",
			Help: "Current task count by status (pending, running).",
		}, []string{"status"}),

		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lake_query_duration_seconds",
			Help:    "Range-read duration from request to decoded rows, by cache outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"cache"}),

		QueryCacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lake_query_cache_hits_total",
			Help: "Result cache hits and misses.",
		}, []string{"outcome"}),
	}

	return m
}

// Handler serves /metrics in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
