package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promGaugeForGRPCClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "betterplayer_grpc_clients",
		Help: "The number of connected controllers",
	})

	promCounterForGRPCRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betterplayer_grpc_requests_total",
		Help: "The total number of grpc requests",
	})

	promCounterForGRPCResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betterplayer_grpc_responses_total",
		Help: "The total number of grpc responses",
	})

	promCounterForGRPCRequestsTimedout = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betterplayer_grpc_requests_timedout_total",
		Help: "The total number of grpc requests timed out",
	})

	promCounterForGRPCRequestsCanceled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betterplayer_grpc_requests_canceled_total",
		Help: "The total number of grpc requests canceled",
	})

	promCounterForGRPCErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betterplayer_grpc_errors_total",
		Help: "The total number of grpc requests failed, by method",
	}, []string{"method"})

	promGaugeForPreCacheJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "betterplayer_pre_cache_jobs",
		Help: "The number of running or queued pre-cache jobs",
	})

	promGaugeForCacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "betterplayer_cache_entries",
		Help: "The number of cache entries",
	})
)

// CollectPrometheusMetrics updates the gauges that are sampled rather than counted
func (server *PlayerServer) CollectPrometheusMetrics() {
	promGaugeForPreCacheJobs.Set(float64(server.GetPreCacheJobs()))

	store, err := server.acquireCache()
	if err != nil {
		return
	}

	stat, err := store.Stat()
	if err != nil {
		return
	}

	promGaugeForCacheEntries.Set(float64(stat.Entries))
}
