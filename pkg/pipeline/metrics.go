package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	namespacesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpa_recommender_namespaces_total",
			Help: "Namespaces processed by final status",
		},
		[]string{"status"}, // succeeded, failed or skipped
	)

	namespaceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vpa_recommender_namespace_duration_seconds",
			Help:    "Time taken to process one namespace end to end",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	recommendationsProduced = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vpa_recommender_last_run_recommendations",
			Help: "Recommendation rows produced by the last run",
		},
	)

	lastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vpa_recommender_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		},
	)
)
