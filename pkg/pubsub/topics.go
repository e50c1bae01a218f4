// Package pubsub provides topic names and event type definitions for the
// gateway's event-driven side channel: webhook deliveries and processor
// sweep completions. Services declare their own encore.dev/pubsub.Topic
// values against these names and event types, the same way invalidation's
// CacheInvalidateTopic is declared next to the event it carries.
//
// Topic Naming Convention:
//   - webhook.delivered: a deferred-task result was reconciled into the cache
//   - processor.sweep.completed: a response-processor sweep finished
//
// Design Notes:
//   - Topics are defined as constants to avoid typos and enable compile-time checks
//   - Version field in events enables schema evolution without breaking consumers
//   - No direct Encore dependencies to keep pkg/ reusable across services
package pubsub

// Topic name constants for Encore Pub/Sub integration.
// These should be used when defining pubsub.Topic[T] in service code.
const (
	// TopicWebhookDelivered is published after a webhook delivery has been
	// verified and reconciled into the response cache.
	// Event type: WebhookDeliveredEvent
	// Publishers: taskqueue
	// Subscribers: none in this core; the topic exists for external
	// observers (billing, notification fan-out) to attach to.
	TopicWebhookDelivered = "webhook.delivered"

	// TopicProcessorSweepCompleted is published after a response processor
	// finishes a ProcessResponsesAll sweep.
	// Event type: ProcessorSweepCompletedEvent
	// Publishers: processor
	// Subscribers: none in this core; intended for monitoring dashboards.
	TopicProcessorSweepCompleted = "processor.sweep.completed"
)

// AllTopics returns all defined topic names.
// Useful for validation, testing, and administrative tools.
func AllTopics() []string {
	return []string{
		TopicWebhookDelivered,
		TopicProcessorSweepCompleted,
	}
}

// IsValidTopic checks if the given topic name is recognized.
func IsValidTopic(topic string) bool {
	for _, t := range AllTopics() {
		if t == topic {
			return true
		}
	}
	return false
}

// TopicMetadata provides descriptive information about topics.
type TopicMetadata struct {
	Name        string
	Description string
	EventType   string
}

// GetTopicMetadata returns metadata for all topics.
// Useful for documentation generation and admin UIs.
func GetTopicMetadata() []TopicMetadata {
	return []TopicMetadata{
		{
			Name:        TopicWebhookDelivered,
			Description: "Webhook deliveries reconciled into the response cache",
			EventType:   "WebhookDeliveredEvent",
		},
		{
			Name:        TopicProcessorSweepCompleted,
			Description: "Response processor sweep completion notifications with stats",
			EventType:   "ProcessorSweepCompletedEvent",
		},
	}
}
