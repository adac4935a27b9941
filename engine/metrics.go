package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricescout_fetch_attempts_total",
		Help: "Fetch attempts by winning transport and outcome (success, blocked, failed).",
	}, []string{"transport", "outcome"})

	transportFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricescout_transport_failures_total",
		Help: "Transport strategies that produced no response.",
	}, []string{"transport"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricescout_fetch_duration_seconds",
		Help:    "Wall time of a full Fetch call including retries.",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"outcome"})
)
