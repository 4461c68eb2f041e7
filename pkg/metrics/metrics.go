package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Service-logger clone lifecycle metrics
	SLCheckPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hpos_sl_check_passes_total",
			Help: "Total number of service-logger check passes by outcome",
		},
		[]string{"outcome"},
	)

	SLCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hpos_sl_check_duration_seconds",
			Help:    "Time taken by one service-logger check pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ClonesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hpos_sl_clones_created_total",
			Help: "Total number of service-logger clones created",
		},
	)

	ClonesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hpos_sl_clones_deleted_total",
			Help: "Total number of service-logger clones deleted",
		},
	)

	RetireSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hpos_sl_retire_skipped_total",
			Help: "Old clones not retired, by reason",
		},
		[]string{"reason"},
	)

	RetireFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hpos_sl_retire_failures_total",
			Help: "Failed retirement steps by step (disable, delete)",
		},
		[]string{"step"},
	)

	// Conductor metrics
	ConductorCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hpos_conductor_call_duration_seconds",
			Help:    "Conductor RPC call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hpos_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hpos_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// HBS metrics
	HBSBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hpos_hbs_breaker_state",
			Help: "HBS circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(SLCheckPassesTotal)
	prometheus.MustRegister(SLCheckDuration)
	prometheus.MustRegister(ClonesCreated)
	prometheus.MustRegister(ClonesDeleted)
	prometheus.MustRegister(RetireSkipped)
	prometheus.MustRegister(RetireFailures)
	prometheus.MustRegister(ConductorCallDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(HBSBreakerState)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
