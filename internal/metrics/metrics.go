// Package metrics holds the Prometheus instrumentation for the converter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// UpstreamRequests counts upstream API requests by endpoint group and
	// outcome (success, absent, error).
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daoip5_upstream_requests_total",
			Help: "Total upstream API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	// UpstreamRetries counts retry attempts against the upstream API.
	UpstreamRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daoip5_upstream_retries_total",
			Help: "Total retry attempts against the upstream API",
		},
	)

	// EpochsProcessed counts epochs by their resolved conclusion state.
	EpochsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daoip5_epochs_processed_total",
			Help: "Epochs processed by conclusion state",
		},
		[]string{"state"},
	)

	// GenerationDuration tracks how long each document type takes to build.
	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "daoip5_generation_duration_seconds",
			Help:    "Document generation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"document"},
	)

	// RateLookups counts exchange-rate resolutions by source
	// (cache, historical, current, none).
	RateLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daoip5_rate_lookups_total",
			Help: "Exchange rate lookups by resolution source",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(
		UpstreamRequests,
		UpstreamRetries,
		EpochsProcessed,
		GenerationDuration,
		RateLookups,
	)
}
