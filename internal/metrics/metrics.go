// Package metrics provides Prometheus instruments for the drive bridge.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Remote API
	remoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alipan_remote_calls_total",
			Help: "Total number of remote API calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	remoteRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alipan_remote_retries_total",
			Help: "Total number of retried remote API requests",
		},
		[]string{"operation"},
	)

	tokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alipan_token_refreshes_total",
			Help: "Total number of access credential exchanges",
		},
		[]string{"outcome"},
	)

	// Directory cache and listing
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alipan_dircache_lookups_total",
			Help: "Directory cache lookups by result",
		},
		[]string{"result"},
	)

	cacheInvalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alipan_dircache_invalidations_total",
			Help: "Total number of directory cache invalidations",
		},
	)

	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alipan_dircache_entries",
			Help: "Number of directories held in the cache",
		},
	)

	listingPagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alipan_listing_pages_total",
			Help: "Total number of listing pages fetched",
		},
	)

	listingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alipan_listing_duration_seconds",
			Help:    "Time to drain a full directory listing",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Content transfer
	rangeReadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alipan_range_read_bytes_total",
			Help: "Total bytes returned by range reads",
		},
	)

	rangeReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alipan_range_reads_total",
			Help: "Total number of range reads by status",
		},
		[]string{"status"},
	)

	uploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alipan_upload_bytes_total",
			Help: "Total bytes uploaded",
		},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alipan_uploads_total",
			Help: "Total number of uploads by status",
		},
		[]string{"status"},
	)

	// Background work
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alipan_tasks_total",
			Help: "Background tasks by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	tasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alipan_tasks_in_flight",
			Help: "Background tasks currently running",
		},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alipan_notifications_total",
			Help: "Change notifications by delivery result",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}

	return "error"
}

// RecordRemoteCall records one remote API call.
func RecordRemoteCall(operation string, success bool) {
	remoteCallsTotal.WithLabelValues(operation, status(success)).Inc()
}

// RecordRemoteRetry records a retried remote API request.
func RecordRemoteRetry(operation string) {
	remoteRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordTokenRefresh records an access credential exchange.
func RecordTokenRefresh(success bool) {
	tokenRefreshesTotal.WithLabelValues(status(success)).Inc()
}

// RecordCacheLookup records a directory cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordCacheInvalidation records a directory cache invalidation.
func RecordCacheInvalidation() {
	cacheInvalidationsTotal.Inc()
}

// SetCacheEntries sets the number of cached directories.
func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

// RecordListing records a drained listing.
func RecordListing(pages int, duration time.Duration) {
	listingPagesTotal.Add(float64(pages))
	listingDuration.Observe(duration.Seconds())
}

// RecordRangeRead records one range read.
func RecordRangeRead(bytes int, success bool) {
	rangeReadBytes.Add(float64(bytes))
	rangeReadsTotal.WithLabelValues(status(success)).Inc()
}

// RecordUpload records a finished upload.
func RecordUpload(bytes int64, success bool) {
	uploadBytes.Add(float64(bytes))
	uploadsTotal.WithLabelValues(status(success)).Inc()
}

// TaskStarted increments the in-flight task gauge.
func TaskStarted() {
	tasksInFlight.Inc()
}

// TaskFinished decrements the in-flight task gauge and records the outcome.
func TaskFinished(kind string, success bool) {
	tasksInFlight.Dec()
	tasksTotal.WithLabelValues(kind, status(success)).Inc()
}

// RecordNotification records a change notification delivery attempt.
func RecordNotification(delivered bool) {
	result := "dropped"
	if delivered {
		result = "delivered"
	}

	notificationsTotal.WithLabelValues(result).Inc()
}
