package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vpa_recommender_sink_rows_written_total",
			Help: "Recommendation rows committed to the sink",
		},
	)

	writeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpa_recommender_sink_write_attempts_total",
			Help: "Sink write attempts by outcome",
		},
		[]string{"outcome"}, // success, retry or error
	)
)
