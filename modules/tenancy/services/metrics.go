package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	resolveTotal   *prometheus.CounterVec
	resolveLatency *prometheus.HistogramVec

	cacheOpsTotal    *prometheus.CounterVec
	cacheErrorsTotal *prometheus.CounterVec
	warmedTotal      prometheus.Counter

	dnsChecksTotal *prometheus.CounterVec
	scanDuration   prometheus.Histogram
	pendingGauge   prometheus.Gauge
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		resolveTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "resolve_total",
			Help:      "Total number of tenant resolutions by outcome.",
		}, []string{"result"}),
		resolveLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tenancy",
			Name:      "resolve_latency_seconds",
			Help:      "Latency distribution for tenant resolution.",
			Buckets: []float64{
				0.0005, 0.001, 0.002, 0.005,
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5, 1,
			},
		}, []string{"result"}),
		cacheOpsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "cache_ops_total",
			Help:      "Total number of tenant cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		cacheErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "cache_backend_errors_total",
			Help:      "Total number of swallowed cache backend errors.",
		}, []string{"op"}),
		warmedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "cache_warmed_entries_total",
			Help:      "Total number of cache entries written by warming.",
		}),
		dnsChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "domain_verification_checks_total",
			Help:      "Total number of domain verification checks by outcome.",
		}, []string{"result"}),
		scanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tenancy",
			Name:      "domain_verification_scan_seconds",
			Help:      "Duration of one pending verification scan.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}),
		pendingGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "tenancy",
			Name:      "domain_verification_pending",
			Help:      "Pending verification attempts seen by the last scan.",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
