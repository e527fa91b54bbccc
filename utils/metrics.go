package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scoreboard",
		Name:      "ingests_received_total",
		Help:      "Total number of accepted uploads (dedup hits excluded)",
	})

	DedupHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scoreboard",
		Name:      "dedup_hits_total",
		Help:      "Duplicate uploads short-circuited, by dedup kind",
	}, []string{"kind"}) // content_ingest, content_match, signature

	ResolutionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scoreboard",
		Name:      "resolution_outcomes_total",
		Help:      "Session resolver decisions",
	}, []string{"outcome"}) // matched, ambiguous, unmatched

	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scoreboard",
		Name:      "extraction_duration_seconds",
		Help:      "Wall time of vision extraction calls",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
	})

	ExtractionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scoreboard",
		Name:      "extraction_failures_total",
		Help:      "Vision extraction calls that returned an error",
	})

	MatchesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scoreboard",
		Name:      "matches_applied_total",
		Help:      "Distinct matches created and applied to a session",
	})

	ManualAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scoreboard",
		Name:      "manual_assignments_total",
		Help:      "Operator assignments of unmatched captures",
	}, []string{"deduped"})
)
