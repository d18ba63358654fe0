package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medsearch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "medsearch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	SearchRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medsearch",
		Name:      "search_requests_total",
		Help:      "Total aggregated searches started.",
	})

	SearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "medsearch",
		Name:      "search_duration_seconds",
		Help:      "End-to-end aggregated search duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medsearch",
		Name:      "provider_requests_total",
		Help:      "Total requests to medicine providers by provider name and result status.",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "medsearch",
		Name:      "provider_request_duration_seconds",
		Help:      "Medicine provider request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"provider"})

	ProviderAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "medsearch",
		Name:      "provider_available",
		Help:      "Whether a provider is available (1) or blocked by circuit breaker (0).",
	}, []string{"provider"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medsearch",
		Name:      "cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medsearch",
		Name:      "cache_misses_total",
		Help:      "Total number of search cache misses.",
	})

	LocalStoreRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "medsearch",
		Name:      "local_store_records",
		Help:      "Number of medicine records in the local store.",
	})

	LocalStoreImportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medsearch",
		Name:      "local_store_imports_total",
		Help:      "Total records processed by bulk imports, by outcome.",
	}, []string{"outcome"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SearchRequestsTotal,
		SearchDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderAvailable,
		CacheHitsTotal,
		CacheMissesTotal,
		LocalStoreRecords,
		LocalStoreImportsTotal,
	)
}
