// Package metrics defines Prometheus metrics for the S3 VFS.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// Block cache metrics.
var (
	// CacheHitsTotal counts block reads served from the cache.
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s3vfs_cache_hits_total",
			Help: "Block reads served from the cache",
		},
	)

	// CacheMissesTotal counts block reads that required a fetch.
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s3vfs_cache_misses_total",
			Help: "Block reads that required an object store fetch",
		},
	)

	// CacheEvictions tracks blocks evicted under capacity pressure.
	CacheEvictions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "s3vfs_cache_evictions",
			Help: "Blocks evicted from the cache under capacity pressure",
		},
	)

	// CacheStoreErrorsTotal counts fetched blocks the cache refused to
	// store, typically because the entry exceeded the per-entry size limit.
	CacheStoreErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s3vfs_cache_store_errors_total",
			Help: "Fetched blocks the cache refused to store",
		},
	)
)

// Fetcher metrics.
var (
	// FetchAttemptsTotal counts individual object store requests, including
	// retries.
	FetchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s3vfs_fetch_attempts_total",
			Help: "Object store requests by operation",
		},
		[]string{"operation"},
	)

	// FetchRetriesTotal counts retries of transient failures.
	FetchRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s3vfs_fetch_retries_total",
			Help: "Retried object store requests by operation",
		},
		[]string{"operation"},
	)

	// FetchBytesTotal counts bytes transferred from the object store.
	FetchBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "s3vfs_fetch_bytes_total",
			Help: "Bytes transferred from the object store",
		},
	)

	// FetchDuration observes object store request latency in seconds.
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "s3vfs_fetch_duration_seconds",
			Help:    "Object store request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Register registers all VFS metrics with the default registry.
// Safe to call multiple times.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheHitsTotal,
			CacheMissesTotal,
			CacheEvictions,
			CacheStoreErrorsTotal,
			FetchAttemptsTotal,
			FetchRetriesTotal,
			FetchBytesTotal,
			FetchDuration,
		)
	})
}
