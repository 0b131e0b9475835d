package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the ingester's metrics on a private registry
type Collector struct {
	recordFilesCommitted prometheus.Counter
	mutationsApplied     prometheus.Counter
	rowsWritten          *prometheus.CounterVec
	mutationsDropped     *prometheus.CounterVec
	commitFailures       *prometheus.CounterVec
	commitRetries        prometheus.Counter

	lastIndex prometheus.Gauge

	commitDuration prometheus.Histogram
	batchMutations prometheus.Histogram

	registry *prometheus.Registry
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,

		recordFilesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirror_importer_record_files_committed_total",
			Help: "Total number of record files committed",
		}),

		mutationsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirror_importer_mutations_applied_total",
			Help: "Total number of mutation events accumulated",
		}),

		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_importer_rows_written_total",
			Help: "Rows written by table region",
		}, []string{"table", "region"}),

		mutationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_importer_mutations_dropped_total",
			Help: "Mutations dropped because a dependency was missing",
		}, []string{"entity_type"}),

		commitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_importer_commit_failures_total",
			Help: "Failed commit attempts",
		}, []string{"retryable"}),

		commitRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirror_importer_commit_retries_total",
			Help: "Commit attempts retried after a transient failure",
		}),

		lastIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mirror_importer_last_record_file_index",
			Help: "Index of the last committed record file",
		}),

		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mirror_importer_commit_duration_seconds",
			Help:    "Time to commit one record file",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}),

		batchMutations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mirror_importer_batch_mutations",
			Help:    "Mutations per record file",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}

	registry.MustRegister(
		c.recordFilesCommitted,
		c.mutationsApplied,
		c.rowsWritten,
		c.mutationsDropped,
		c.commitFailures,
		c.commitRetries,
		c.lastIndex,
		c.commitDuration,
		c.batchMutations,
	)
	return c
}

func (c *Collector) MutationApplied() {
	c.mutationsApplied.Inc()
}

func (c *Collector) MutationsDropped(entityType string, n int) {
	c.mutationsDropped.WithLabelValues(entityType).Add(float64(n))
}

// RowsWritten counts rows per table and region ("current", "history" or
// "event").
func (c *Collector) RowsWritten(table, region string, n int) {
	c.rowsWritten.WithLabelValues(table, region).Add(float64(n))
}

func (c *Collector) CommitSucceeded(index int64, mutations int, d time.Duration) {
	c.recordFilesCommitted.Inc()
	c.lastIndex.Set(float64(index))
	c.commitDuration.Observe(d.Seconds())
	c.batchMutations.Observe(float64(mutations))
}

func (c *Collector) CommitFailed(retryable bool) {
	label := "false"
	if retryable {
		label = "true"
	}
	c.commitFailures.WithLabelValues(label).Inc()
}

func (c *Collector) CommitRetried() {
	c.commitRetries.Inc()
}

// Registry exposes the private registry for tests and custom exporters.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
