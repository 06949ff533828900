// Package metrics wires the bridge's Prometheus gauges/counters behind a
// private registry, not the global default one, served on an
// internal-only listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the bridge exposes.
type Collector struct {
	registry *prometheus.Registry

	AuthDenials          *prometheus.CounterVec
	NonceCacheSize       prometheus.Gauge
	NonceEvictions       prometheus.Counter
	RateLimitClients     prometheus.Gauge
	RateLimitEvictions   prometheus.Counter

	PushBatchSize    prometheus.Histogram
	PushBatchLatency prometheus.Histogram
	PushRetries      prometheus.Counter
	PushDropped      prometheus.Counter

	SnapshotCacheHits   prometheus.Counter
	SnapshotCacheMisses prometheus.Counter
	SnapshotCacheSize   prometheus.Gauge

	MJPEGActiveStreams  prometheus.Gauge
	WebRTCActiveSessions prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{registry: reg}

	c.AuthDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartly_bridge_auth_denials_total",
		Help: "AuthGate verification failures by kind.",
	}, []string{"kind"})
	reg.MustRegister(c.AuthDenials)

	c.NonceCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smartly_bridge_nonce_cache_size",
		Help: "Current number of live entries in the nonce cache.",
	})
	reg.MustRegister(c.NonceCacheSize)

	c.NonceEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartly_bridge_nonce_evictions_total",
		Help: "Nonces evicted by the periodic sweep.",
	})
	reg.MustRegister(c.NonceEvictions)

	c.RateLimitClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smartly_bridge_rate_limit_clients",
		Help: "Distinct client_ids with a live rate-limit window.",
	})
	reg.MustRegister(c.RateLimitClients)

	c.RateLimitEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartly_bridge_rate_limit_evictions_total",
		Help: "Rate limit windows dropped as fully idle by the sweep.",
	})
	reg.MustRegister(c.RateLimitEvictions)

	c.PushBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "smartly_bridge_push_batch_size",
		Help:    "Number of events per delivered push batch.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	reg.MustRegister(c.PushBatchSize)

	c.PushBatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "smartly_bridge_push_batch_latency_seconds",
		Help:    "Time from the first webhook delivery attempt to success, per batch.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(c.PushBatchLatency)

	c.PushRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartly_bridge_push_retries_total",
		Help: "Push delivery retry attempts.",
	})
	reg.MustRegister(c.PushRetries)

	c.PushDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartly_bridge_push_dropped_batches_total",
		Help: "Push batches dropped after exhausting retries.",
	})
	reg.MustRegister(c.PushDropped)

	c.SnapshotCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartly_bridge_snapshot_cache_hits_total",
		Help: "Snapshot requests served from cache.",
	})
	reg.MustRegister(c.SnapshotCacheHits)

	c.SnapshotCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartly_bridge_snapshot_cache_misses_total",
		Help: "Snapshot requests that required a fresh fetch.",
	})
	reg.MustRegister(c.SnapshotCacheMisses)

	c.SnapshotCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smartly_bridge_snapshot_cache_size",
		Help: "Current number of cached camera snapshots.",
	})
	reg.MustRegister(c.SnapshotCacheSize)

	c.MJPEGActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smartly_bridge_mjpeg_active_streams",
		Help: "Currently open MJPEG proxy streams.",
	})
	reg.MustRegister(c.MJPEGActiveStreams)

	c.WebRTCActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smartly_bridge_webrtc_active_sessions",
		Help: "Currently active WebRTC sessions.",
	})
	reg.MustRegister(c.WebRTCActiveSessions)

	return c
}

// Handler serves the private registry on the internal metrics listener.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
