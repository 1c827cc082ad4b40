package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CounterForCacheHitBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betterplayer_cache_hit_bytes_total",
		Help: "The total number of bytes served from the disk cache",
	})

	CounterForCacheMissBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betterplayer_cache_miss_bytes_total",
		Help: "The total number of bytes fetched from upstream",
	})

	CounterForCacheWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betterplayer_cache_write_failures_total",
		Help: "The total number of cache write failures ignored by readers",
	})

	CounterForCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betterplayer_cache_evictions_total",
		Help: "The total number of evicted cache entries",
	})

	GaugeForCacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "betterplayer_cache_bytes",
		Help: "The number of bytes currently held by the disk cache",
	})

	CounterForPrefetchJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betterplayer_prefetch_jobs_total",
		Help: "The total number of finished pre-cache jobs by outcome",
	}, []string{"outcome"})

	CounterForPrefetchSoftFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betterplayer_prefetch_soft_failures_total",
		Help: "The total number of transport errors hidden by partial pre-cache success",
	})

	GaugeForRunningPrefetchJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "betterplayer_prefetch_running_jobs",
		Help: "The number of running pre-cache jobs",
	})

	CounterForDrmKeyRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betterplayer_drm_key_requests_total",
		Help: "The total number of handled content key requests",
	})

	CounterForDrmKeyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betterplayer_drm_key_failures_total",
		Help: "The total number of failed content key requests",
	})

	CounterForPlaybackStalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betterplayer_playback_stalls_total",
		Help: "The total number of sessions failed by stall detection",
	})

	CounterForPlaybackErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betterplayer_playback_errors_total",
		Help: "The total number of sessions failed by engine errors",
	})

	GaugeForSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "betterplayer_sessions",
		Help: "The number of live playback sessions",
	})
)
