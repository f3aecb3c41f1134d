package kafka

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message outcomes recorded by TriggerMessages.
const (
	OutcomeReceived     = "received"
	OutcomeProcessed    = "processed"
	OutcomeFailed       = "failed"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeDuplicate    = "duplicate"
)

var (
	// TriggerMessages counts consumed trigger messages by outcome.
	TriggerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_trigger_messages_total",
			Help: "Kafka trigger messages by topic, consumer group and outcome",
		},
		[]string{"topic", "consumer_group", "outcome"},
	)

	// TriggerHandleDuration observes handler time per message, retries included.
	TriggerHandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_trigger_handle_duration_seconds",
			Help:    "Time spent handling one Kafka trigger message",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		},
		[]string{"topic", "consumer_group"},
	)
)

// outcome increments TriggerMessages for one message.
func outcome(topic, group, result string) {
	TriggerMessages.WithLabelValues(topic, group, result).Inc()
}

// observeSince records the handling time of a message started at start.
func observeSince(topic, group string, start time.Time) {
	TriggerHandleDuration.WithLabelValues(topic, group).Observe(time.Since(start).Seconds())
}

type deliveryKey struct{}

type delivery struct {
	topic string
	group string
}

// withDelivery records where a message came from so handler wrappers can
// label their metrics.
func withDelivery(ctx context.Context, topic, group string) context.Context {
	return context.WithValue(ctx, deliveryKey{}, delivery{topic: topic, group: group})
}

// outcomeFromContext is outcome for wrappers that only see the context.
// Handlers invoked outside a Consumer are labelled with empty values.
func outcomeFromContext(ctx context.Context, result string) {
	d, _ := ctx.Value(deliveryKey{}).(delivery)
	outcome(d.topic, d.group, result)
}
