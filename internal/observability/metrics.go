package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignalsIngested = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hail_core", Name: "signals_ingested_total", Help: "Total ride-demand signals accepted"})
	HotspotsActive  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_hail_core", Name: "hotspots_active", Help: "Clusters in the latest snapshot"})
	PeopleWaiting   = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_hail_core", Name: "people_waiting", Help: "Total people across the latest cluster snapshot"})

	HoldsCreated   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hail_core", Name: "holds_created_total", Help: "Wallet holds created"})
	HoldsReleased  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hail_core", Name: "holds_released_total", Help: "Wallet holds released in full"})
	HoldsForfeited = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hail_core", Name: "holds_forfeited_total", Help: "Wallet holds resolved with a penalty"})
	PenaltyAmount  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hail_core", Name: "penalty_amount_total", Help: "Cumulative penalty amount charged"})

	ArrivalsExpired = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hail_core", Name: "arrivals_expired_total", Help: "Arrival countdowns that expired unconfirmed"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hail_core", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_hail_core",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
