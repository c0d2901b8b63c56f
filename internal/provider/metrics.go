// Package-level Prometheus collectors for gateway monitoring.
package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationAttempts counts per-backend generation attempts.
	// Labels: provider, result (success, error, timeout)
	GenerationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interviewd",
			Subsystem: "provider",
			Name:      "generation_attempts_total",
			Help:      "Total generation attempts per backend",
		},
		[]string{"provider", "result"},
	)

	// GenerationDuration tracks attempt latency per backend.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "interviewd",
			Subsystem: "provider",
			Name:      "generation_duration_seconds",
			Help:      "Duration of generation attempts in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Fallbacks counts calls that succeeded only after at least one
	// backend failed.
	Fallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "interviewd",
			Subsystem: "provider",
			Name:      "fallbacks_total",
			Help:      "Total generations served by a non-primary backend",
		},
	)

	// Exhaustions counts calls where every backend failed.
	Exhaustions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "interviewd",
			Subsystem: "provider",
			Name:      "exhaustions_total",
			Help:      "Total generations that failed against every backend",
		},
	)

	// ProviderUp indicates last-known availability (1=available).
	ProviderUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "interviewd",
			Subsystem: "provider",
			Name:      "up",
			Help:      "Last-known backend availability (1=available, 0=unavailable)",
		},
		[]string{"provider"},
	)

	// HealthChecks counts probe outcomes.
	// Labels: provider, result (success, error)
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interviewd",
			Subsystem: "provider",
			Name:      "health_checks_total",
			Help:      "Total health-check probes per backend",
		},
		[]string{"provider", "result"},
	)
)
