package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded on backoffice_kafka_consumer_messages_total.
const (
	outcomeReceived     = "received"
	outcomeProcessed    = "processed"
	outcomeFailed       = "failed"
	outcomeDuplicate    = "duplicate"
	outcomeDeadLettered = "dead_lettered"
)

var (
	consumerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "kafka_consumer",
			Name:      "messages_total",
			Help:      "Consumed messages by outcome",
		},
		[]string{"topic", "consumer_group", "outcome"},
	)

	consumerHandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "backoffice",
			Subsystem: "kafka_consumer",
			Name:      "handle_duration_seconds",
			Help:      "Time from fetch to final handler outcome, retries included",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2.5, 5},
		},
		[]string{"topic", "consumer_group"},
	)

	producerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "kafka_producer",
			Name:      "messages_total",
			Help:      "Publish attempts by result (ok, error)",
		},
		[]string{"topic", "result"},
	)

	producerPublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "backoffice",
			Subsystem: "kafka_producer",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka writes",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)

func countConsumed(topic, group, outcome string) {
	consumerMessages.WithLabelValues(topic, group, outcome).Inc()
}
