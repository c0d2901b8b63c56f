package interview

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "interviewd",
		Subsystem: "session",
		Name:      "started_total",
		Help:      "Interview sessions created.",
	})

	sessionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interviewd",
		Subsystem: "session",
		Name:      "completed_total",
		Help:      "Interview sessions completed, by how they ended.",
	}, []string{"reason"})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interviewd",
		Subsystem: "session",
		Name:      "turns_total",
		Help:      "Interviewer turns produced, by persona.",
	}, []string{"persona"})

	phaseAdvances = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "interviewd",
		Subsystem: "session",
		Name:      "phase_advances_total",
		Help:      "Phase transitions to the next persona.",
	})

	overallScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "interviewd",
		Subsystem: "session",
		Name:      "overall_score",
		Help:      "Final weighted scores of completed sessions.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "interviewd",
		Subsystem: "session",
		Name:      "persist_failures_total",
		Help:      "Transitions rolled back due to store errors.",
	})
)
