// Package metrics registers the Prometheus counters and histograms
// exported by edgeproxy, labeled by outcome/origin/resource type the
// way Trickster's internal/util/metrics labels ProxyRequestStatus and
// ProxyRequestDuration by origin/path/method/status.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestsTotal counts every handled request by outcome, origin, and
// resource type.
var RequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "edgeproxy",
		Name:      "requests_total",
		Help:      "Count of intercepted requests by outcome, origin, and resource type.",
	},
	[]string{"outcome", "origin", "resource_type"},
)

// BodyBytesServed sums cached body bytes served by outcome.
var BodyBytesServed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "edgeproxy",
		Name:      "body_bytes_served_total",
		Help:      "Cumulative decompressed body bytes served from cache, by outcome.",
	},
	[]string{"outcome"},
)

// WireBytesSaved sums the origin-advertised bytes not re-fetched on a hit
// or revalidation.
var WireBytesSaved = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "edgeproxy",
		Name:      "wire_bytes_saved_total",
		Help:      "Cumulative compressed wire bytes saved by serving from cache instead of origin.",
	},
	[]string{"origin"},
)

// CacheBodyBytes is a gauge of total on-disk cache body bytes.
var CacheBodyBytes = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "edgeproxy",
		Name:      "cache_body_bytes",
		Help:      "Current total body bytes held by the storage engine.",
	},
)

// EvictionsTotal counts entries removed by the eviction sweep.
var EvictionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "edgeproxy",
		Name:      "evictions_total",
		Help:      "Total metadata entries removed by eviction.",
	},
)

// HandlerDuration observes how long Handle takes per outcome.
var HandlerDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "edgeproxy",
		Name:      "handler_duration_seconds",
		Help:      "Time spent in the request handler state machine, by outcome.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"outcome"},
)

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
