package pubsub

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Event versioning strategy:
// - Version 1: Initial schema
// - Future versions: Add fields, never remove (backward compatible)
// - Consumers should check Version and handle appropriately

const (
	// EventVersion1 is the current event schema version
	EventVersion1 = 1
)

// WebhookDeliveredEvent represents a completed webhook reconciliation.
// This event is published to TopicWebhookDelivered.
//
// Design notes:
//   - Tag is the cache key the delivered payload was stored under, letting
//     a subscriber correlate the event back to the original Standard* call
//     without re-parsing the payload.
//   - RequestID enables distributed tracing across the post/webhook pair.
type WebhookDeliveredEvent struct {
	// Version of the event schema (for backward compatibility)
	Version int `json:"version"`

	// Client that owns the webhook (e.g. "dataforseo")
	Client string `json:"client"`

	// Tag is the cache key the payload was reconciled under.
	Tag string `json:"tag"`

	// Endpoint the payload was stored against.
	Endpoint string `json:"endpoint"`

	// StatusCode the provider delivered with the payload.
	StatusCode int `json:"status_code"`

	// DeliveredAt is when the webhook was reconciled.
	DeliveredAt time.Time `json:"delivered_at"`

	// Meta contains optional metadata (e.g., "source=dataforseo")
	Meta map[string]string `json:"meta,omitempty"`

	// RequestID for distributed tracing and correlation
	RequestID string `json:"request_id"`
}

// Validate checks if the WebhookDeliveredEvent is well-formed.
func (e *WebhookDeliveredEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.Client == "" {
		return errors.New("client field is required")
	}
	if e.Tag == "" {
		return errors.New("tag field is required")
	}
	if e.DeliveredAt.IsZero() {
		return errors.New("delivered_at cannot be zero")
	}
	return nil
}

// ToJSON serializes the event to JSON.
func (e *WebhookDeliveredEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WebhookDeliveredEventFromJSON deserializes a WebhookDeliveredEvent from JSON.
func WebhookDeliveredEventFromJSON(data []byte) (*WebhookDeliveredEvent, error) {
	var e WebhookDeliveredEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal WebhookDeliveredEvent: %w", err)
	}
	return &e, nil
}

// ProcessorSweepCompletedEvent represents the completion of one processor's
// ProcessResponsesAll sweep. This event is published to
// TopicProcessorSweepCompleted.
//
// Use cases:
//   - Notify monitoring of sweep completion and error rates
//   - Trigger downstream processes after a processor's destination tables
//     are up to date
type ProcessorSweepCompletedEvent struct {
	// Version of the event schema
	Version int `json:"version"`

	// Processor that ran (e.g. "serpprocessor")
	Processor string `json:"processor"`

	// Client the sweep ran against (e.g. "dataforseo")
	Client string `json:"client"`

	// Status of the sweep ("success", "partial", "failed")
	Status string `json:"status"`

	// Scanned is the number of rows examined across all batches.
	Scanned int `json:"scanned"`

	// Processed is the number of rows marked processed, including rows
	// marked ERROR (those are also counted in Errors).
	Processed int `json:"processed"`

	// Upserted is the number of destination rows written.
	Upserted int `json:"upserted"`

	// Errors is the number of rows that failed extraction.
	Errors int `json:"errors"`

	// Error message if Status is "failed".
	Error string `json:"error,omitempty"`

	// CompletedAt is the time the sweep completed.
	CompletedAt time.Time `json:"completed_at"`

	// RequestID for distributed tracing
	RequestID string `json:"request_id"`
}

// Validate checks if the ProcessorSweepCompletedEvent is well-formed.
func (e *ProcessorSweepCompletedEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.Processor == "" {
		return errors.New("processor field is required")
	}
	validStatuses := map[string]bool{"success": true, "partial": true, "failed": true}
	if !validStatuses[e.Status] {
		return fmt.Errorf("invalid status: %s (must be success, partial, or failed)", e.Status)
	}
	if e.Scanned < 0 || e.Processed < 0 || e.Upserted < 0 || e.Errors < 0 {
		return errors.New("counts cannot be negative")
	}
	if e.CompletedAt.IsZero() {
		return errors.New("completed_at cannot be zero")
	}
	return nil
}

// ToJSON serializes the event to JSON.
func (e *ProcessorSweepCompletedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ProcessorSweepCompletedEventFromJSON deserializes a
// ProcessorSweepCompletedEvent from JSON.
func ProcessorSweepCompletedEventFromJSON(data []byte) (*ProcessorSweepCompletedEvent, error) {
	var e ProcessorSweepCompletedEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ProcessorSweepCompletedEvent: %w", err)
	}
	return &e, nil
}
