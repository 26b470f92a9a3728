// Package metrics exposes Prometheus counters/gauges/histograms for the
// connection pool, routing pool, task queue, and lock manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolCheckoutsTotal counts connection checkouts by outcome.
	PoolCheckoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterkit_pool_checkouts_total",
			Help: "Total number of connection pool checkouts",
		},
		[]string{"outcome"}, // idle_hit, opened, failure
	)

	// PoolCheckinsTotal counts connection returns by outcome.
	PoolCheckinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterkit_pool_checkins_total",
			Help: "Total number of connection pool checkins",
		},
		[]string{"outcome"}, // enqueued, expired, overflow
	)

	// PoolIdleQueueDepth tracks the idle queue depth per connection key.
	PoolIdleQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clusterkit_pool_idle_queue_depth",
			Help: "Idle connection queue depth for a connection key",
		},
		[]string{"key"},
	)

	// RoutingFailoversTotal counts sticky-aggregator failovers.
	RoutingFailoversTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clusterkit_routing_failovers_total",
			Help: "Total number of routing pool failovers away from a sticky aggregator",
		},
	)

	// RoutingRefreshesTotal counts SHOW AGGREGATORS refreshes.
	RoutingRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterkit_routing_refreshes_total",
			Help: "Total number of aggregator-list refreshes",
		},
		[]string{"outcome"}, // success, failure, singlebox
	)

	// QueueClaimsTotal counts task claim attempts by outcome.
	QueueClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterkit_queue_claims_total",
			Help: "Total number of task claim attempts",
		},
		[]string{"queue", "outcome"}, // claimed, empty, raced
	)

	// QueueHeartbeatsTotal counts successful heartbeats.
	QueueHeartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterkit_queue_heartbeats_total",
			Help: "Total number of task heartbeats",
		},
		[]string{"queue"},
	)

	// QueueReclamationsTotal counts tasks observed reclaimed after TTL.
	QueueReclamationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterkit_queue_reclamations_total",
			Help: "Total number of tasks reclaimed after TTL expiry",
		},
		[]string{"queue"},
	)

	// QueueFinishesTotal counts finished tasks.
	QueueFinishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterkit_queue_finishes_total",
			Help: "Total number of tasks finished",
		},
		[]string{"queue"},
	)

	// QueueBulkFinishRows counts rows affected by administrative sweeps.
	QueueBulkFinishRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterkit_queue_bulk_finish_rows_total",
			Help: "Total number of rows affected by bulk-finish sweeps",
		},
		[]string{"queue"},
	)

	// LockAcquisitionsTotal counts lock acquisitions.
	LockAcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterkit_lock_acquisitions_total",
			Help: "Total number of locks acquired",
		},
		[]string{"lock"},
	)

	// LockReleasesTotal counts lock releases.
	LockReleasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterkit_lock_releases_total",
			Help: "Total number of locks released",
		},
		[]string{"lock"},
	)

	// LockContentionTotal counts acquire attempts that found the lock
	// already held.
	LockContentionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterkit_lock_contention_total",
			Help: "Total number of acquire attempts that found the lock already held",
		},
		[]string{"lock"},
	)

	// APIRequestsTotal counts management API requests by route, method,
	// and status code.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterkit_api_requests_total",
			Help: "Total number of management API requests",
		},
		[]string{"route", "method", "status"},
	)

	// APIRequestDurationSeconds observes management API request latency.
	APIRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clusterkit_api_request_duration_seconds",
			Help:    "Management API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// RecordPoolCheckout records a checkout by outcome ("idle_hit", "opened",
// "failure").
func RecordPoolCheckout(outcome string) {
	PoolCheckoutsTotal.WithLabelValues(outcome).Inc()
}

// RecordPoolCheckin records a checkin by outcome ("enqueued", "expired",
// "overflow").
func RecordPoolCheckin(outcome string) {
	PoolCheckinsTotal.WithLabelValues(outcome).Inc()
}

// SetPoolIdleQueueDepth sets the idle queue depth gauge for a key.
func SetPoolIdleQueueDepth(key string, depth int) {
	PoolIdleQueueDepth.WithLabelValues(key).Set(float64(depth))
}

// RecordRoutingFailover records a sticky-aggregator failover.
func RecordRoutingFailover() {
	RoutingFailoversTotal.Inc()
}

// RecordRoutingRefresh records an aggregator-list refresh by outcome.
func RecordRoutingRefresh(outcome string) {
	RoutingRefreshesTotal.WithLabelValues(outcome).Inc()
}

// RecordQueueClaim records a claim attempt outcome for a named queue.
func RecordQueueClaim(queue, outcome string) {
	QueueClaimsTotal.WithLabelValues(queue, outcome).Inc()
}

// RecordQueueHeartbeat records a successful heartbeat for a named queue.
func RecordQueueHeartbeat(queue string) {
	QueueHeartbeatsTotal.WithLabelValues(queue).Inc()
}

// RecordQueueReclamation records an observed TTL reclamation for a named
// queue.
func RecordQueueReclamation(queue string) {
	QueueReclamationsTotal.WithLabelValues(queue).Inc()
}

// RecordQueueFinish records a finished task for a named queue.
func RecordQueueFinish(queue string) {
	QueueFinishesTotal.WithLabelValues(queue).Inc()
}

// RecordQueueBulkFinish adds the number of rows affected by a bulk-finish
// sweep for a named queue.
func RecordQueueBulkFinish(queue string, rows int64) {
	QueueBulkFinishRows.WithLabelValues(queue).Add(float64(rows))
}

// RecordLockAcquired records a successful lock acquisition.
func RecordLockAcquired(lock string) {
	LockAcquisitionsTotal.WithLabelValues(lock).Inc()
}

// RecordLockReleased records a lock release.
func RecordLockReleased(lock string) {
	LockReleasesTotal.WithLabelValues(lock).Inc()
}

// RecordLockContention records an acquire attempt that found the lock
// already held.
func RecordLockContention(lock string) {
	LockContentionTotal.WithLabelValues(lock).Inc()
}

// RecordAPIRequest records a completed management API request.
func RecordAPIRequest(route, method, status string) {
	APIRequestsTotal.WithLabelValues(route, method, status).Inc()
}

// RecordAPIRequestDuration observes a management API request's latency.
func RecordAPIRequestDuration(route string, seconds float64) {
	APIRequestDurationSeconds.WithLabelValues(route).Observe(seconds)
}
