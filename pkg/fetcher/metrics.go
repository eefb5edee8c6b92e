package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpa_recommender_fetch_attempts_total",
			Help: "Metric fetch attempts by query and outcome",
		},
		[]string{"query", "outcome"}, // success, retry or error
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vpa_recommender_fetch_duration_seconds",
			Help:    "Time taken to fetch one metric for one namespace, retries included",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"query"},
	)

	unavailableMetrics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpa_recommender_metric_unavailable_total",
			Help: "Metrics marked unavailable for a namespace after retries were exhausted",
		},
		[]string{"query"},
	)
)
