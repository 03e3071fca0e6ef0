// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PayloadsIngestedTotal tracks stored payloads by outcome (new, updated, unchanged, error)
	PayloadsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "ingest",
			Name:      "payloads_total",
			Help:      "Total number of raw payloads stored by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// CanonicalizationsTotal tracks canonicalization attempts by status
	CanonicalizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "canonicalize",
			Name:      "entities_total",
			Help:      "Total number of canonicalization attempts by source and status",
		},
		[]string{"source", "status"},
	)

	// ResolutionsTotal tracks resolution passes by outcome (created, updated, unchanged, error)
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolution",
			Name:      "resolutions_total",
			Help:      "Total number of resolution passes by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// ResolutionDuration tracks the time spent resolving one canonical entity, lock wait included
	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "resolution",
			Name:      "duration_seconds",
			Help:      "Duration of resolution passes in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"source"},
	)

	// ResolutionRetriesTotal tracks optimistic concurrency retries
	ResolutionRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolution",
			Name:      "retries_total",
			Help:      "Total number of resolution retries after a concurrent update",
		},
		[]string{"source"},
	)

	// FieldDecisionsTotal tracks per-field merge decisions
	FieldDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolution",
			Name:      "field_decisions_total",
			Help:      "Total number of per-field merge decisions by field and decision",
		},
		[]string{"source", "field", "decision"},
	)

	// FieldConflictsTotal tracks equal-weight conflicts left for review
	FieldConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolution",
			Name:      "field_conflicts_total",
			Help:      "Total number of equal-weight field conflicts left for manual review",
		},
		[]string{"field"},
	)

	// ProjectionFailuresTotal tracks downstream projection failures
	ProjectionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "projection",
			Name:      "failures_total",
			Help:      "Total number of failed golden record projections",
		},
		[]string{"projector"},
	)

	// KafkaMessagesConsumed tracks Kafka messages consumed by status
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of messages consumed from Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// TrustRuleCacheLookups tracks cached trust rule lookups by result (hit, miss)
	TrustRuleCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "trust",
			Name:      "cache_lookups_total",
			Help:      "Total number of trust rule cache lookups by result",
		},
		[]string{"result"},
	)
)

// RecordIngest records a stored payload
func RecordIngest(source string, isNew, unchanged bool) {
	outcome := "updated"
	switch {
	case isNew:
		outcome = "new"
	case unchanged:
		outcome = "unchanged"
	}
	PayloadsIngestedTotal.WithLabelValues(source, outcome).Inc()
}

// RecordIngestError records a failed payload store
func RecordIngestError(source string) {
	PayloadsIngestedTotal.WithLabelValues(source, "error").Inc()
}

// RecordCanonicalization records a canonicalization attempt
func RecordCanonicalization(source string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	CanonicalizationsTotal.WithLabelValues(source, status).Inc()
}

// RecordResolution records a resolution pass and its duration
func RecordResolution(source, outcome string, duration time.Duration) {
	ResolutionsTotal.WithLabelValues(source, outcome).Inc()
	ResolutionDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordKafkaPublish records a Kafka publish attempt
func RecordKafkaPublish(topic string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(duration.Seconds())
}

// RecordKafkaConsume records a consumed Kafka message
func RecordKafkaConsume(topic, status string) {
	KafkaMessagesConsumed.WithLabelValues(topic, status).Inc()
}
