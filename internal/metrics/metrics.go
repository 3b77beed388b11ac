// Package metrics exposes Prometheus instrumentation for sync passes, the query
// cache and the notification hook.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	syncPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fansite_sync_passes_total",
		Help: "Sync passes run, by depth and outcome",
	}, []string{"depth", "outcome"}) // depth=deep|incremental, outcome=success|upstream_error|store_error

	syncItems = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fansite_sync_items_total",
		Help: "Catalog items written by sync passes",
	})

	syncLockContention = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fansite_sync_lock_contention_total",
		Help: "Freshness checks that found the sync lock already held",
	})

	lastSyncTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fansite_last_sync_timestamp_seconds",
		Help: "Unix time of the last completed sync pass",
	})

	queryCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fansite_query_cache_requests_total",
		Help: "Query cache lookups by result",
	}, []string{"result"}) // result=hit|miss|error

	webhookNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fansite_webhook_notifications_total",
		Help: "Upstream push notifications by outcome",
	}, []string{"outcome"}) // outcome=verified|invalidated|rejected|failed
)

// RecordSyncPass counts a completed pass.
func RecordSyncPass(deep bool, outcome string, items int, finishedUnix float64) {
	depth := "incremental"
	if deep {
		depth = "deep"
	}
	syncPasses.WithLabelValues(depth, outcome).Inc()
	syncItems.Add(float64(items))
	if finishedUnix > 0 {
		lastSyncTimestamp.Set(finishedUnix)
	}
}

// RecordLockContention counts a freshness check that lost the lock race.
func RecordLockContention() {
	syncLockContention.Inc()
}

// RecordQueryCache counts a query cache lookup.
func RecordQueryCache(result string) {
	queryCacheRequests.WithLabelValues(result).Inc()
}

// RecordWebhook counts a push notification.
func RecordWebhook(outcome string) {
	webhookNotifications.WithLabelValues(outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
