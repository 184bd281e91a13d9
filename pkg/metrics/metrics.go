// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IdentifyRequestsTotal tracks Identify calls by source and outcome
	IdentifyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "identity",
			Name:      "identify_requests_total",
			Help:      "Total number of identify requests by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// IdentifyDuration tracks Identify latency in seconds
	IdentifyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "identity",
			Name:      "identify_duration_seconds",
			Help:      "Duration of identify units of work in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"outcome"},
	)

	// ContactsCreatedTotal tracks contact rows written by precedence
	ContactsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "identity",
			Name:      "contacts_created_total",
			Help:      "Total number of contacts created by link precedence",
		},
		[]string{"precedence"},
	)

	// ClusterMergesTotal tracks reconciliations of several primaries
	ClusterMergesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "identity",
			Name:      "cluster_merges_total",
			Help:      "Total number of cluster merges",
		},
	)

	// ContactsDemotedTotal tracks primaries turned into secondaries
	ContactsDemotedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "identity",
			Name:      "contacts_demoted_total",
			Help:      "Total number of primary contacts demoted during merges",
		},
	)

	// ContactsRelinkedTotal tracks secondaries moved to a new primary
	ContactsRelinkedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "identity",
			Name:      "contacts_relinked_total",
			Help:      "Total number of secondary contacts relinked during merges",
		},
	)

	// LockWaitDuration tracks time spent acquiring identifier locks
	LockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "lock",
			Name:      "wait_duration_seconds",
			Help:      "Time spent acquiring identifier locks in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// KafkaMessagesTotal tracks consumed observation messages by status
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of consumed Kafka messages by status",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishTotal tracks published events by status
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of published Kafka messages by status",
		},
		[]string{"topic", "status"},
	)

	// GraphProjectionsTotal tracks cluster projections into the graph database
	GraphProjectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "graph",
			Name:      "projections_total",
			Help:      "Total number of cluster projections by status",
		},
		[]string{"status"},
	)
)

// RecordIdentify records the outcome and latency of one Identify call.
func RecordIdentify(source, outcome string, durationSeconds float64) {
	if source == "" {
		source = "unknown"
	}
	IdentifyRequestsTotal.WithLabelValues(source, outcome).Inc()
	IdentifyDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

func RecordContactCreated(precedence string) {
	ContactsCreatedTotal.WithLabelValues(precedence).Inc()
}

// RecordMerge records one reconciliation.
func RecordMerge(demoted, relinked int) {
	ClusterMergesTotal.Inc()
	ContactsDemotedTotal.Add(float64(demoted))
	ContactsRelinkedTotal.Add(float64(relinked))
}

func RecordLockWait(durationSeconds float64) {
	LockWaitDuration.Observe(durationSeconds)
}

func RecordKafkaMessage(topic, status string) {
	KafkaMessagesTotal.WithLabelValues(topic, status).Inc()
}

func RecordKafkaPublish(topic, status string) {
	KafkaPublishTotal.WithLabelValues(topic, status).Inc()
}

func RecordGraphProjection(status string) {
	GraphProjectionsTotal.WithLabelValues(status).Inc()
}
