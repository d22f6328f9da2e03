// Package metrics exposes Prometheus collectors for operation application.
//
// # Basic Usage
//
//	collector := metrics.NewCollector("get_length", "persisting")
//	timer := collector.StartApply()
//	ds, err := apply(...)
//	timer.Done(err)
//	collector.RecordsProcessed(ds.Len())
//
// All collectors register with the default Prometheus registry on package
// initialization, so importing the package is enough to expose them on a
// /metrics handler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Cache lookup results.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheCorrupt  = "corrupt"
	CacheDisabled = "disabled"
)

var (
	// ApplyTotal counts operation applications.
	// Labels: operation, mode, status (success/failure)
	ApplyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalab_apply_total",
			Help: "Total number of operation applications",
		},
		[]string{"operation", "mode", "status"},
	)

	// RecordsProcessed counts records passed through per-record callables.
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalab_records_processed_total",
			Help: "Total number of records processed by operations",
		},
		[]string{"operation", "mode"},
	)

	// ApplyLatency tracks the wall time of one application in seconds.
	ApplyLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "datalab_apply_latency_seconds",
			Help: "Operation application latency in seconds",
			Buckets: []float64{
				0.001, // cache hits on small datasets
				0.01,
				0.1,
				1,
				10,
				60,
				600, // large materializations
			},
		},
		[]string{"operation", "mode"},
	)

	// CacheLookups counts persisting-mode cache lookups.
	// Labels: result (hit/miss/corrupt/disabled)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalab_cache_lookups_total",
			Help: "Total number of cache lookups by result",
		},
		[]string{"result"},
	)

	// ShardsProcessed counts worker pool shards.
	// Labels: status (success/failure)
	ShardsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalab_shards_processed_total",
			Help: "Total number of shards processed by the worker pool",
		},
		[]string{"status"},
	)
)

// Collector binds the labels of one operation and mode.
type Collector struct {
	operation string
	mode      string
}

// NewCollector creates a collector for an operation applied in mode.
func NewCollector(operation, mode string) *Collector {
	return &Collector{operation: operation, mode: mode}
}

// ApplyTimer measures one application.
type ApplyTimer struct {
	c     *Collector
	start time.Time
}

// StartApply starts timing an application.
func (c *Collector) StartApply() *ApplyTimer {
	return &ApplyTimer{c: c, start: time.Now()}
}

// Done records the outcome and latency and returns the elapsed time.
func (t *ApplyTimer) Done(err error) time.Duration {
	d := time.Since(t.start)
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	ApplyTotal.WithLabelValues(t.c.operation, t.c.mode, status).Inc()
	ApplyLatency.WithLabelValues(t.c.operation, t.c.mode).Observe(d.Seconds())
	return d
}

// RecordsProcessed adds n processed records.
func (c *Collector) RecordsProcessed(n int) {
	if n > 0 {
		RecordsProcessed.WithLabelValues(c.operation, c.mode).Add(float64(n))
	}
}

// CacheLookup records a cache lookup result.
func (c *Collector) CacheLookup(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

// ShardDone records a finished worker pool shard.
func (c *Collector) ShardDone(err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	ShardsProcessed.WithLabelValues(status).Inc()
}
