package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NearRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "places_near_requests_total",
		Help: "Total number of proximity searches",
	})
	NearDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "places_near_duration_ms",
		Help:    "Proximity search duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	NearRanges = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "places_near_ranges",
		Help:    "Geohash ranges queried per proximity search",
		Buckets: []float64{1, 2, 4, 6, 9},
	})
	NearCandidates = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "places_near_candidates",
		Help:    "Records returned by the coarse geohash phase per search",
		Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000},
	})
	NearResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "places_near_results",
		Help:    "Records returned to the caller per search",
		Buckets: []float64{0, 1, 10, 25, 50, 100, 250, 500},
	})
	NearErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "places_near_errors_total",
		Help: "Failed proximity searches by error kind",
	}, []string{"kind"})
	StoreErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "places_store_errors_total",
		Help: "Document store failures by operation",
	}, []string{"op"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "places_cache_hits_total",
		Help: "Total redis response cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "places_cache_misses_total",
		Help: "Total redis response cache misses",
	})
	PlacesAddedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "places_added_total",
		Help: "Total places created",
	})
	PlacesDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "places_deleted_total",
		Help: "Total places deleted",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "places_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(NearRequestsTotal)
	prometheus.MustRegister(NearDurationMs)
	prometheus.MustRegister(NearRanges)
	prometheus.MustRegister(NearCandidates)
	prometheus.MustRegister(NearResults)
	prometheus.MustRegister(NearErrorsTotal)
	prometheus.MustRegister(StoreErrorsTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(PlacesAddedTotal)
	prometheus.MustRegister(PlacesDeletedTotal)
	prometheus.MustRegister(RateLimitedTotal)
}

// 文档注释：返回 Prometheus 指标处理器，在主入口挂载到 {API_BASE}/metrics
func Handler() http.Handler { return promhttp.Handler() }
